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

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Publishing while the subscriber is being removed must not send on a
// closed channel
func TestPublishUnsubscribeRace(t *testing.T) {
	const iters = 1000
	for range iters {
		eb := NewEventBus(nil, nil)
		typ := EventType("race.test")
		subId, ch := eb.Subscribe(typ)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := range 10 {
				eb.Publish(typ, NewEvent(typ, j))
			}
		}()
		go func() {
			defer wg.Done()
			eb.Unsubscribe(typ, subId)
			eb.Stop()
		}()
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		wg.Wait()
	}
}

// Subscriptions racing with Stop either end with it or outlive it, and a
// second Stop collects the survivors
func TestSubscribeFuncStopRace(t *testing.T) {
	const iters = 1000
	for range iters {
		eb := NewEventBus(nil, nil)
		typ := EventType("race.subscribefunc.stop")

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if eb.SubscribeFunc(typ, func(Event) {}) == 0 {
					t.Error("subscribe returned no id")
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Stop()
		}()
		wg.Wait()
		eb.Stop()
	}
}

// A subscriber that is not reading holds up neither Publish nor the order of
// what it later reads
func TestPublishDoesNotBlockOnSlowReader(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	typ := EventType("slow.reader")
	_, ch := eb.Subscribe(typ)

	const total = EventQueueSize * 3
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			eb.Publish(typ, NewEvent(typ, i))
		}
	}()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond,
		"Publish should not block on a slow reader",
	)

	for i := range total {
		select {
		case evt := <-ch:
			require.Equal(t, i, evt.Data)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

// Unsubscribing while the channel is full and events are still being
// published must finish promptly
func TestUnsubscribeDoesNotDeadlockWithFullChannel(t *testing.T) {
	const iters = 500
	for range iters {
		eb := NewEventBus(nil, nil)
		typ := EventType("close.deadlock.test")
		subId, ch := eb.Subscribe(typ)
		for range EventQueueSize + 5 {
			eb.Publish(typ, NewEvent(typ, "fill"))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				eb.Publish(typ, NewEvent(typ, "storm"))
			}
		}()
		go func() {
			defer wg.Done()
			eb.Unsubscribe(typ, subId)
		}()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			// The channel closes once the subscription has ended
			for range ch {
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("deadlock: Unsubscribe/Publish blocked for 5s")
		}
		eb.Stop()
	}
}
