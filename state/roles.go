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
	"github.com/sitedb/sitesync/graph"
)

const (
	globalAdminRole  = "global-admin"
	globalAdminGroup = "global"
)

// HasGroupRole reports whether the caller holds role in group. Both names are
// compared by slug.
func (s *State) HasGroupRole(role string, group string) bool {
	return HasGroupRole(s.Snapshot(), role, group)
}

// HasSiteRole reports whether the caller holds role at site. The site may be
// given by its canonical or internal name; both are compared by slug.
func (s *State) HasSiteRole(role string, site string) bool {
	return HasSiteRole(s.Snapshot(), role, site)
}

// IsGlobalAdmin reports whether the caller is a global administrator
func (s *State) IsGlobalAdmin() bool {
	return IsGlobalAdmin(s.Snapshot())
}

// IsGlobalAdmin checks the caller of snap
func IsGlobalAdmin(snap *graph.Snapshot) bool {
	return HasGroupRole(snap, globalAdminRole, globalAdminGroup)
}

// HasGroupRole checks the caller of snap. Grants come from the caller's role
// assignments and from the role map of the who-am-i record.
func HasGroupRole(snap *graph.Snapshot, role string, group string) bool {
	if snap == nil {
		return false
	}
	role, group = graph.Slug(role), graph.Slug(group)
	if snap.WhoAmI != nil {
		for name, scope := range snap.WhoAmI.Roles {
			if graph.Slug(name) != role {
				continue
			}
			for _, g := range scope.Group {
				if graph.Slug(g) == group {
					return true
				}
			}
		}
	}
	if caller := snap.Caller(); caller != nil {
		for title, pr := range caller.Roles {
			if graph.Slug(title) != role {
				continue
			}
			for _, g := range pr.Group {
				if graph.Slug(g.Name) == group {
					return true
				}
			}
		}
	}
	return false
}

// HasSiteRole checks the caller of snap, see HasGroupRole
func HasSiteRole(snap *graph.Snapshot, role string, site string) bool {
	if snap == nil {
		return false
	}
	role, site = graph.Slug(role), graph.Slug(site)
	if snap.WhoAmI != nil {
		for name, scope := range snap.WhoAmI.Roles {
			if graph.Slug(name) != role {
				continue
			}
			for _, s := range scope.Site {
				if graph.Slug(s) == site {
					return true
				}
			}
		}
	}
	if caller := snap.Caller(); caller != nil {
		for title, pr := range caller.Roles {
			if graph.Slug(title) != role {
				continue
			}
			for _, s := range pr.Site {
				if graph.Slug(s.CanonicalName) == site || graph.Slug(s.Name) == site {
					return true
				}
			}
		}
	}
	return false
}
