// Copyright 2026 Blink Labs Software
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

// Package state keeps a local replica of the data server's resources for one
// data instance and publishes a consolidated snapshot of them.
//
// All mutations run on a single control goroutine. Public methods post their
// work to it and wait; fetch goroutines and timers only post results back.
// Snapshots, slot signals and error reports are delivered through the event
// bus, so subscribers may call back into the State.
package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitedb/sitesync/event"
	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/resource"
	"github.com/sitedb/sitesync/response"
	"github.com/sitedb/sitesync/transport"
)

const (
	// DefaultQuietPeriod is how long partial arrivals may accumulate before
	// a partial snapshot is published
	DefaultQuietPeriod = 500 * time.Millisecond

	tracerName = "github.com/sitedb/sitesync/state"
)

var (
	ErrClosed     = errors.New("state is closed")
	ErrNoFetcher  = errors.New("no fetcher configured")
	ErrNoInstance = errors.New("no instance configured")
)

// Fetcher retrieves one resource from the data server
type Fetcher interface {
	Fetch(ctx context.Context, req transport.Request) (*response.Payload, error)
}

type Config struct {
	Logger         *slog.Logger
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	TracerProvider trace.TracerProvider
	Fetcher        Fetcher
	// OnUpdate is called with every published snapshot
	OnUpdate func(*graph.Snapshot)
	// OnError is called with every error report
	OnError func(ErrorReport)
	// Resources defaults to resource.Catalog
	Resources   []string
	Instance    string
	QuietPeriod time.Duration
	// afterFunc runs f after d and returns a function that cancels it
	afterFunc func(d time.Duration, f func()) func() bool
}

type State struct {
	config    Config
	logger    *slog.Logger
	loop      *loop
	registry  *resource.Registry
	inflight  map[string]*fetch
	task      *scheduledTask
	tracer    trace.Tracer
	ctx       context.Context
	cancel    context.CancelFunc
	snapshot  atomic.Pointer[graph.Snapshot]
	instance  atomic.Pointer[string]
	complete  atomic.Bool
	metrics   stateMetrics
	subs      map[event.EventType]event.EventSubscriberId
	wg        sync.WaitGroup
	closeOnce sync.Once
	seq       uint64
	ownBus    bool
}

func New(cfg Config) (*State, error) {
	if cfg.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.Instance == "" {
		return nil, ErrNoInstance
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.afterFunc == nil {
		cfg.afterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	s := &State{
		config:   cfg,
		logger:   cfg.Logger.With("component", "state"),
		loop:     newLoop(),
		registry: resource.NewRegistry(cfg.Instance, cfg.Resources...),
		inflight: make(map[string]*fetch),
		subs:     make(map[event.EventType]event.EventSubscriberId),
	}
	if s.config.EventBus == nil {
		s.config.EventBus = event.NewEventBus(nil, cfg.Logger)
		s.ownBus = true
	}
	if cfg.TracerProvider != nil {
		s.tracer = cfg.TracerProvider.Tracer(tracerName)
	} else {
		s.tracer = otel.Tracer(tracerName)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.metrics.init(cfg.PromRegistry)
	instance := cfg.Instance
	s.instance.Store(&instance)
	if cfg.OnUpdate != nil {
		s.subs[SnapshotEventType] = s.config.EventBus.SubscribeFunc(
			SnapshotEventType,
			func(evt event.Event) {
				if e, ok := evt.Data.(SnapshotEvent); ok {
					cfg.OnUpdate(e.Snapshot)
				}
			},
		)
	}
	if cfg.OnError != nil {
		s.subs[ErrorEventType] = s.config.EventBus.SubscribeFunc(
			ErrorEventType,
			func(evt event.Event) {
				if report, ok := evt.Data.(ErrorReport); ok {
					cfg.OnError(report)
				}
			},
		)
	}
	go s.loop.run()
	s.logger.Debug(
		"started",
		"instance", cfg.Instance,
		"resources", len(s.registry.Names()),
	)
	return s, nil
}

// EventBus returns the bus the State publishes on
func (s *State) EventBus() *event.EventBus {
	return s.config.EventBus
}

// Close cancels outstanding fetches and the quiet-period task and waits for
// the control goroutine to exit
func (s *State) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.call(func() {
			s.cancelAll()
			s.cancelTask()
			s.cancel()
			s.loop.stop()
		})
		<-s.loop.done
		s.wg.Wait()
		if s.ownBus {
			s.config.EventBus.Stop()
		} else {
			for evtType, subId := range s.subs {
				s.config.EventBus.Unsubscribe(evtType, subId)
			}
		}
		s.logger.Debug("stopped")
	})
	return err
}

// call runs fn on the control goroutine and waits for it to finish
func (s *State) call(fn func()) error {
	done := make(chan struct{})
	ok := s.loop.post(func() {
		defer close(done)
		fn()
	})
	if !ok {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.loop.done:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Require starts fetching every named resource that is not valid and not
// already being fetched
func (s *State) Require(names ...string) error {
	var err error
	if callErr := s.call(func() {
		if err = s.registry.Check(names...); err != nil {
			return
		}
		s.require(names)
	}); callErr != nil {
		return callErr
	}
	return err
}

// RequireAll requires every cataloged resource
func (s *State) RequireAll() error {
	return s.call(func() {
		s.require(s.registry.Names())
	})
}

// Invalidate marks every resource out of date. Nothing is fetched until the
// next Require, which asks the server to revalidate what is held.
func (s *State) Invalidate() error {
	return s.call(s.invalidateAll)
}

// SwitchInstance moves the State to another data instance. All held values
// are dropped and the next Require bypasses caches; nothing is fetched yet.
func (s *State) SwitchInstance(instance string) error {
	if instance == "" {
		return ErrNoInstance
	}
	return s.call(func() {
		s.switchInstance(instance)
	})
}

// CurrentInstance returns the data instance in use
func (s *State) CurrentInstance() string {
	return *s.instance.Load()
}

// Complete reports whether every resource is valid with no fetch in flight
func (s *State) Complete() bool {
	return s.complete.Load()
}

// Snapshot returns the most recently published snapshot, or nil before the
// first one
func (s *State) Snapshot() *graph.Snapshot {
	return s.snapshot.Load()
}

// Slots returns a copy of every resource slot in catalog order
func (s *State) Slots() ([]resource.Slot, error) {
	var ret []resource.Slot
	if err := s.call(func() {
		ret = s.registry.Snapshot()
	}); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *State) publish(eventType event.EventType, data any) {
	s.config.EventBus.Publish(eventType, event.NewEvent(eventType, data))
}

func (s *State) setComplete(complete bool) {
	s.complete.Store(complete)
	s.metrics.complete.Set(boolGauge(complete))
}
