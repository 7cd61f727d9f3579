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

package graph

import "github.com/sitedb/sitesync/resource"

// Resource types with a bucket on every site
const (
	ResourceCE = "CE"
	ResourceSE = "SE"
)

// AliasCMS is the name alias type that supplies a site's canonical name
const AliasCMS = "cms"

// Person is keyed by e-mail address
type Person struct {
	Attrs    resource.Row
	Roles    map[string]*PersonRole // by role title
	Sites    map[string]*Site       // by site canonical name
	Groups   map[string]*Group      // by group name
	Email    string
	Surname  string
	Forename string
	Fullname string
	Username string
	IMHandle string
}

// PersonRole lists where a person holds a role
type PersonRole struct {
	Site  []*Site
	Group []*Group
}

// Site is keyed by its internal name
type Site struct {
	Attrs            resource.Row
	NameAlias        map[string][]string             // by alias type
	Resources        map[string][]*Resource          // by resource type
	ResourcePledges  map[string]*Pledge              // by quarter
	PinnedSoftware   map[string][]*PinnedSoftware    // by compute endpoint
	Responsibilities map[string][]*Person            // by role title
	ParentSite       *Site
	ChildSites       []*Site
	Name             string
	CanonicalName    string
	Tier             string
	Country          string
}

// Resource is a compute or storage endpoint hosted by a site
type Resource struct {
	Attrs resource.Row
	Type  string
	FQDN  string
}

// Pledge is a quarterly capacity commitment of a site
type Pledge struct {
	Attrs      resource.Row
	PledgeDate any
	Quarter    string
}

// PinnedSoftware fixes a software release on a compute endpoint
type PinnedSoftware struct {
	Attrs   resource.Row
	CE      string
	Arch    string
	Release string
}

// Role is keyed by title
type Role struct {
	Attrs         resource.Row
	Site          map[string][]*Person // by site name
	Group         map[string][]*Person // by group name
	SiteMembers   []*SiteMembership
	GroupMembers  []*GroupMembership
	Members       []*Person
	Title         string
	CanonicalName string
}

// SiteMembership is the people holding a role at one site
type SiteMembership struct {
	Site   *Site
	People []*Person
}

// GroupMembership is the people holding a role in one group
type GroupMembership struct {
	Group  *Group
	People []*Person
}

// Group is keyed by name
type Group struct {
	Attrs         resource.Row
	Members       []*Person
	Name          string
	CanonicalName string
}

// RoleScope is a role grant as reported by the who-am-i record, listing
// group and site names
type RoleScope struct {
	Group []string
	Site  []string
}

// WhoAmI identifies the caller
type WhoAmI struct {
	Attrs  resource.Row
	Person *Person
	// Roles holds the grants reported by the server, by role name
	Roles map[string]RoleScope
	Login string
}

// Snapshot is one consolidated view of all resources. A published snapshot
// is never modified.
type Snapshot struct {
	SitesByTier  map[string][]*Site
	SitesByName  map[string]*Site
	SitesByCMS   map[string]*Site
	PeopleByHN   map[string]*Person
	PeopleByMail map[string]*Person
	RolesByTitle map[string]*Role
	GroupsByName map[string]*Group
	WhoAmI       *WhoAmI
	Instance     string
	Tiers        []string
	People       []*Person
	Roles        []*Role
	Groups       []*Group
	// Dropped counts rows per resource that named an unknown site, person,
	// role or group
	Dropped map[string]int
	// Partial is set when the snapshot was built before every resource had
	// arrived
	Partial bool
}

// Caller returns the Person record of the caller, if known
func (s *Snapshot) Caller() *Person {
	if s == nil || s.WhoAmI == nil {
		return nil
	}
	return s.WhoAmI.Person
}
