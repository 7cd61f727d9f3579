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

package resource

// Validity encodes how strongly a resource must be refetched. Lower values
// demand a stronger refetch.
type Validity int

const (
	// Reload forces a refetch that bypasses any transport cache
	Reload Validity = -1
	// Invalid permits a soft refetch that a transport cache may answer
	Invalid Validity = 0
	// Valid needs no refetch
	Valid Validity = 1
)

func (v Validity) String() string {
	switch v {
	case Reload:
		return "reload"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	default:
		return "unknown"
	}
}

// Slot is the state of a single resource
type Slot struct {
	Name     string
	Value    []Row
	Validity Validity
	Pending  bool
}

func newSlot(name string) *Slot {
	return &Slot{
		Name:     name,
		Validity: Reload,
	}
}

// Lower weakens the validity to at most floor. It never raises it.
func (s *Slot) Lower(floor Validity) {
	if s.Validity > floor {
		s.Validity = floor
	}
}

// Settle records a successfully decoded value and marks the slot valid.
// With keep set the current value is retained, as for a not-modified reply.
func (s *Slot) Settle(rows []Row, keep bool) {
	if !keep {
		s.Value = rows
	}
	s.Validity = Valid
	s.Pending = false
}
