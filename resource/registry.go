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

// Package resource holds the per-resource slots tracked by the state layer:
// the fixed catalog of resource names, their validity and their raw rows.
package resource

import (
	"errors"
	"fmt"
	"slices"
)

// Resource names served by the data API
const (
	WhoAmI                = "whoami"
	Roles                 = "roles"
	Groups                = "groups"
	People                = "people"
	Sites                 = "sites"
	SiteNames             = "site-names"
	SiteResources         = "site-resources"
	SiteAssociations      = "site-associations"
	ResourcePledges       = "resource-pledges"
	PinnedSoftware        = "pinned-software"
	SiteResponsibilities  = "site-responsibilities"
	GroupResponsibilities = "group-responsibilities"
)

// Catalog is the fixed set of resources, in request order
var Catalog = []string{
	WhoAmI,
	Roles,
	Groups,
	People,
	Sites,
	SiteNames,
	SiteResources,
	SiteAssociations,
	ResourcePledges,
	PinnedSoftware,
	SiteResponsibilities,
	GroupResponsibilities,
}

var ErrUnknownResource = errors.New("unknown resource")

// Row is a single field-named record of a resource table
type Row map[string]any

// Registry holds one slot per cataloged resource for a single data instance.
// It is not safe for concurrent use; the owner serializes access.
type Registry struct {
	slots    map[string]*Slot
	names    []string
	instance string
}

// NewRegistry creates a registry for the given instance. With no names the
// default Catalog is used. Every slot starts out at Reload with no value.
func NewRegistry(instance string, names ...string) *Registry {
	if len(names) == 0 {
		names = Catalog
	}
	r := &Registry{
		slots:    make(map[string]*Slot, len(names)),
		names:    slices.Clone(names),
		instance: instance,
	}
	for _, name := range r.names {
		r.slots[name] = newSlot(name)
	}
	return r
}

// Instance returns the data instance the slots belong to
func (r *Registry) Instance() string {
	return r.instance
}

// Names returns the cataloged resource names in registration order
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Slot returns the slot for a resource name
func (r *Registry) Slot(name string) (*Slot, bool) {
	s, ok := r.slots[name]
	return s, ok
}

// Check returns ErrUnknownResource if any name is not cataloged
func (r *Registry) Check(names ...string) error {
	for _, name := range names {
		if _, ok := r.slots[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownResource, name)
		}
	}
	return nil
}

// Rows returns the raw rows currently held for a resource. Absent and unknown
// resources yield nil, which callers treat as an empty table.
func (r *Registry) Rows(name string) []Row {
	if s, ok := r.slots[name]; ok {
		return s.Value
	}
	return nil
}

// Complete reports whether every slot is valid and none is pending
func (r *Registry) Complete() bool {
	for _, s := range r.slots {
		if s.Validity != Valid || s.Pending {
			return false
		}
	}
	return true
}

// Pending returns the number of slots with a fetch in flight
func (r *Registry) Pending() int {
	var n int
	for _, s := range r.slots {
		if s.Pending {
			n++
		}
	}
	return n
}

// Poison forces every slot to Reload so the next require bypasses caches.
// Values are kept.
func (r *Registry) Poison() {
	for _, s := range r.slots {
		s.Validity = Reload
	}
}

// InvalidateAll lowers every slot to at most Invalid, keeping values and
// pending flags. Slots that must reload stay that way.
func (r *Registry) InvalidateAll() {
	for _, s := range r.slots {
		s.Lower(Invalid)
	}
}

// Reset switches the registry to another instance: every slot goes back to
// Reload with its value cleared and no fetch pending.
func (r *Registry) Reset(instance string) {
	r.instance = instance
	for _, name := range r.names {
		r.slots[name] = newSlot(name)
	}
}

// Snapshot returns copies of all slots in catalog order
func (r *Registry) Snapshot() []Slot {
	ret := make([]Slot, 0, len(r.names))
	for _, name := range r.names {
		ret = append(ret, *r.slots[name])
	}
	return ret
}
