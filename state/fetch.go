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

package state

import (
	"context"
	"errors"
	"time"

	"github.com/sitedb/sitesync/resource"
	"github.com/sitedb/sitesync/response"
	"github.com/sitedb/sitesync/transport"
)

// fetch is an outstanding request for one resource
type fetch struct {
	cancel  context.CancelFunc
	started time.Time
	seq     uint64
}

func (s *State) require(names []string) {
	for _, name := range names {
		slot, ok := s.registry.Slot(name)
		if !ok {
			continue
		}
		if slot.Validity != resource.Valid && !slot.Pending {
			s.refresh(slot, resource.Invalid)
		}
	}
}

// refresh issues a new fetch for a slot, replacing any in flight
func (s *State) refresh(slot *resource.Slot, floor resource.Validity) {
	s.setComplete(false)
	slot.Lower(floor)
	if f, ok := s.inflight[slot.Name]; ok {
		f.cancel()
		delete(s.inflight, slot.Name)
	}
	slot.Pending = true
	s.emitSlot(slot, SlotStatePending)

	req := transport.Request{
		Instance:   s.registry.Instance(),
		Resource:   slot.Name,
		Reload:     slot.Validity == resource.Reload,
		Revalidate: slot.Value != nil,
	}
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight[slot.Name] = &fetch{
		seq:     seq,
		cancel:  cancel,
		started: time.Now(),
	}
	s.metrics.pending.Set(float64(len(s.inflight)))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		payload, err := s.config.Fetcher.Fetch(ctx, req)
		s.loop.post(func() {
			s.fetchDone(req.Resource, seq, payload, err)
		})
	}()
}

// fetchDone handles the result of a fetch on the control goroutine
func (s *State) fetchDone(
	name string,
	seq uint64,
	payload *response.Payload,
	err error,
) {
	f, ok := s.inflight[name]
	if !ok || f.seq != seq {
		// Superseded or cancelled
		return
	}
	delete(s.inflight, name)
	f.cancel()
	s.metrics.pending.Set(float64(len(s.inflight)))
	slot, _ := s.registry.Slot(name)
	slot.Pending = false
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.metrics.fetches.WithLabelValues(name, "error").Inc()
		s.fail(name, response.CommError(name, err))
		return
	}
	result, err := s.decode(name, payload)
	if err != nil {
		s.metrics.fetches.WithLabelValues(name, "error").Inc()
		s.fail(name, err)
		return
	}
	switch {
	case result.NotModified:
		s.metrics.fetches.WithLabelValues(name, "not-modified").Inc()
	case payload.FromCache:
		s.metrics.fetches.WithLabelValues(name, "cached").Inc()
	default:
		s.metrics.fetches.WithLabelValues(name, "ok").Inc()
	}
	slot.Settle(result.Rows, result.NotModified)
	s.emitSlot(slot, SlotStateValid)
	s.logger.Debug(
		"resource arrived",
		"resource", name,
		"rows", len(slot.Value),
		"not_modified", result.NotModified,
		"duration", time.Since(f.started),
	)
	s.arrived()
}

func (s *State) decode(
	name string,
	payload *response.Payload,
) (result *response.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return response.Decode(name, payload)
}

// fail aborts every fetch in flight, forces all slots to reload and reports
// the error once
func (s *State) fail(name string, err error) {
	var report ErrorReport
	slotState := SlotStateError
	var perr *panicError
	if errors.As(err, &perr) {
		report = exceptionReport(name, perr)
	} else {
		report = newErrorReport(err)
		switch report.Category {
		case response.CategoryBadStatus, response.CategoryBadCType:
			slotState = SlotStateInvalid
		}
	}
	s.cancelAll()
	s.registry.Poison()
	s.setComplete(false)
	if slot, ok := s.registry.Slot(name); ok {
		s.emitSlot(slot, slotState)
	}
	s.metrics.fetchErrors.WithLabelValues(string(report.Category)).Inc()
	s.logger.Error(
		"failed to update state",
		"category", report.Category,
		"resource", name,
		"error", err,
	)
	s.publish(ErrorEventType, report)
}

func (s *State) cancelAll() {
	for name, f := range s.inflight {
		f.cancel()
		if slot, ok := s.registry.Slot(name); ok {
			slot.Pending = false
		}
	}
	clear(s.inflight)
	s.metrics.pending.Set(0)
}

func (s *State) invalidateAll() {
	s.registry.InvalidateAll()
	s.setComplete(false)
	for _, slot := range s.registry.Snapshot() {
		s.emitSlot(&slot, SlotStateReset)
	}
}

func (s *State) switchInstance(instance string) {
	if instance == s.registry.Instance() {
		return
	}
	s.cancelAll()
	s.cancelTask()
	s.registry.Reset(instance)
	s.instance.Store(&instance)
	s.setComplete(false)
	for _, slot := range s.registry.Snapshot() {
		s.emitSlot(&slot, SlotStateReset)
	}
	s.logger.Info("switched instance", "instance", instance)
}

func (s *State) emitSlot(slot *resource.Slot, slotState SlotState) {
	s.publish(SlotEventType, SlotEvent{
		Name:     slot.Name,
		Instance: s.registry.Instance(),
		State:    slotState,
		Validity: slot.Validity,
	})
}
