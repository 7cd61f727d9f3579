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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitedb/sitesync/graph"
)

// scheduledTask is a pending quiet-period rebuild
type scheduledTask struct {
	stop func() bool
}

// arrived is called after every successful decode. A complete set of
// resources is published at once; otherwise a single partial rebuild is
// scheduled for the end of the quiet period.
func (s *State) arrived() {
	complete := s.registry.Complete()
	s.setComplete(complete)
	if complete {
		s.cancelTask()
		s.rebuild(false)
		return
	}
	if s.task == nil {
		s.schedule()
	}
}

func (s *State) schedule() {
	task := &scheduledTask{}
	s.task = task
	task.stop = s.config.afterFunc(s.config.QuietPeriod, func() {
		s.loop.post(func() {
			// The task may have been cancelled after the timer fired
			if s.task != task {
				return
			}
			s.task = nil
			s.rebuild(!s.registry.Complete())
		})
	})
}

func (s *State) cancelTask() {
	if s.task == nil {
		return
	}
	if s.task.stop != nil {
		s.task.stop()
	}
	s.task = nil
}

// rebuild builds and publishes a new snapshot from the values held
func (s *State) rebuild(partial bool) {
	instance := s.registry.Instance()
	_, span := s.tracer.Start(
		s.ctx,
		"state.rebuild",
		trace.WithAttributes(
			attribute.String("sitesync.instance", instance),
			attribute.Bool("sitesync.partial", partial),
		),
	)
	defer span.End()
	start := time.Now()
	snap, perr := s.build(instance, partial)
	if perr != nil {
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		s.fail("", perr)
		return
	}
	elapsed := time.Since(start)
	kind := "complete"
	if partial {
		kind = "partial"
	}
	s.metrics.rebuilds.WithLabelValues(kind).Inc()
	s.metrics.rebuildDuration.Observe(elapsed.Seconds())
	for name, count := range snap.Dropped {
		s.logger.Debug(
			"dropped rows with unknown references",
			"resource", name,
			"count", count,
		)
	}
	s.snapshot.Store(snap)
	s.logger.Debug(
		"published snapshot",
		"instance", instance,
		"partial", partial,
		"sites", len(snap.SitesByName),
		"people", len(snap.People),
		"duration", elapsed,
	)
	s.publish(SnapshotEventType, SnapshotEvent{
		Snapshot: snap,
		Complete: !partial,
	})
}

func (s *State) build(
	instance string,
	partial bool,
) (snap *graph.Snapshot, perr *panicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = recovered(r)
		}
	}()
	return graph.Build(s.registry, instance, partial), nil
}
