// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package event provides a small publish/subscribe bus. Publishing never
// blocks: every subscriber owns an unbounded queue drained by its own
// goroutine, so a producer running a control loop can publish while its
// subscribers call back into it.
package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const EventQueueSize = 20

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	metrics     *eventMetrics
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	Logger      *slog.Logger
}

// NewEventBus creates a new EventBus
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		Logger:      logger,
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	return e
}

// subscriber queues events for one consumer and hands them over in order
// from a dedicated goroutine
type subscriber struct {
	handler  EventHandlerFunc
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	queue    []Event
	mu       sync.Mutex
	stopOnce sync.Once
}

func newSubscriber(handler EventHandlerFunc) *subscriber {
	return &subscriber{
		handler: handler,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) deliver(evt Event) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *subscriber) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *subscriber) run(logger *slog.Logger, eventType EventType) {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, evt := range batch {
			select {
			case <-s.stop:
				return
			default:
			}
			s.invoke(logger, eventType, evt)
		}
		select {
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}

func (s *subscriber) invoke(logger *slog.Logger, eventType EventType, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(
				"event handler panic",
				"component", "event",
				"type", eventType,
				"error", fmt.Sprintf("%v", r),
			)
		}
	}()
	s.handler(evt)
}

func (e *EventBus) register(
	eventType EventType,
	sub *subscriber,
	onExit func(),
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	go func() {
		defer close(sub.done)
		sub.run(e.Logger, eventType)
		if onExit != nil {
			onExit()
		}
	}()
	return subId
}

// Subscribe allows a consumer to receive events of a particular type via a
// channel. The channel is closed once the subscription ends; events still
// queued at that point are dropped.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	ch := make(chan Event, EventQueueSize)
	var sub *subscriber
	sub = newSubscriber(func(evt Event) {
		select {
		case ch <- evt:
		case <-sub.stop:
		}
	})
	subId := e.register(eventType, sub, func() { close(ch) })
	return subId, ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via
// a callback function. Callbacks for one subscription run one at a time in
// publish order.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	return e.register(eventType, newSubscriber(handlerFunc), nil)
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var subToClose *subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if sub, ok2 := evtTypeSubs[subId]; ok2 {
			subToClose = sub
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	e.mu.Unlock()

	if subToClose != nil {
		subToClose.close()
	}
}

// Publish queues an event for every subscriber of its type. It never blocks
// on subscriber delivery.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subs := e.subscribers[eventType]
	subList := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		subList = append(subList, sub)
	}
	e.mu.RUnlock()
	for _, sub := range subList {
		if !sub.deliver(evt) && e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType)).Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// Stop ends all subscriptions and waits for their goroutines to exit. The
// EventBus can still be used after Stop() is called.
func (e *EventBus) Stop() {
	e.mu.Lock()
	subsCopy := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
	e.mu.Unlock()

	for _, evtTypeSubs := range subsCopy {
		for _, sub := range evtTypeSubs {
			sub.close()
		}
	}
	for _, evtTypeSubs := range subsCopy {
		for _, sub := range evtTypeSubs {
			<-sub.done
		}
	}

	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
}
