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
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sitedb/sitesync/event"
	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/resource"
	"github.com/sitedb/sitesync/response"
)

const (
	SlotEventType     event.EventType = "sitesync.slot"
	SnapshotEventType event.EventType = "sitesync.snapshot"
	ErrorEventType    event.EventType = "sitesync.error"
)

// SlotState is the debug indicator of a single resource
type SlotState string

const (
	SlotStateReset   SlotState = ""
	SlotStatePending SlotState = "pending"
	SlotStateValid   SlotState = "valid"
	SlotStateInvalid SlotState = "invalid"
	SlotStateError   SlotState = "error"
)

// SlotEvent signals a change of a resource slot
type SlotEvent struct {
	Name     string
	Instance string
	State    SlotState
	Validity resource.Validity
}

// SnapshotEvent carries a newly published snapshot
type SnapshotEvent struct {
	Snapshot *graph.Snapshot
	Complete bool
}

// ErrorSeverity is the severity of every report raised by the state layer
const ErrorSeverity = 10000

const (
	reportSubsystem = "state"
	reportFile      = "(state)"
)

// ErrorReport describes a hard error for display
type ErrorReport struct {
	Err       error
	File      string
	Subsystem string
	Category  response.Category
	Message   string
	Resource  string
	Severity  int
	Line      int
}

func newErrorReport(err error) ErrorReport {
	report := ErrorReport{
		Err:       err,
		Severity:  ErrorSeverity,
		File:      reportFile,
		Subsystem: reportSubsystem,
		Category:  response.CategoryOf(err),
		Message:   err.Error(),
	}
	var rerr *response.Error
	if errors.As(err, &rerr) {
		report.Resource = rerr.Resource
		report.Message = rerr.Message
		if rerr.Err != nil {
			report.Message += ": " + rerr.Err.Error()
		}
	}
	return report
}

// panicError is a recovered panic with the location that raised it
type panicError struct {
	value any
	file  string
	line  int
}

func (p *panicError) Error() string {
	return "panic: " + strings.TrimSpace(fmt.Sprint(p.value))
}

// exceptionReport builds the report for a recovered panic
func exceptionReport(name string, p *panicError) ErrorReport {
	return ErrorReport{
		Err:       p,
		Severity:  ErrorSeverity,
		File:      p.file,
		Line:      p.line,
		Subsystem: reportSubsystem,
		Category:  response.CategoryException,
		Resource:  name,
		Message:   "an exception was raised during update: " + p.Error(),
	}
}

// recovered wraps the value returned by recover. It must be called directly
// from the deferred function.
func recovered(v any) *panicError {
	p := &panicError{value: v, file: "(unknown)"}
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	inPanic := false
	for {
		frame, more := frames.Next()
		isRuntime := strings.HasPrefix(frame.Function, "runtime.") ||
			strings.HasPrefix(frame.Function, "internal/runtime/")
		if frame.Function == "runtime.gopanic" {
			inPanic = true
		} else if inPanic && !isRuntime {
			p.file = filepath.Base(frame.File)
			p.line = frame.Line
			break
		}
		if !more {
			break
		}
	}
	return p
}
