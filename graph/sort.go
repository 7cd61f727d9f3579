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

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

// SortPerson orders people by surname, forename and e-mail address
func SortPerson(a, b *Person) int {
	return cmp.Or(
		strings.Compare(a.Surname, b.Surname),
		strings.Compare(a.Forename, b.Forename),
		strings.Compare(a.Email, b.Email),
	)
}

// SortSite orders sites by canonical name
func SortSite(a, b *Site) int {
	return cmp.Or(
		strings.Compare(a.CanonicalName, b.CanonicalName),
		strings.Compare(a.Name, b.Name),
	)
}

// SortGroup orders groups by name
func SortGroup(a, b *Group) int {
	return strings.Compare(a.Name, b.Name)
}

// SortRole orders roles by title
func SortRole(a, b *Role) int {
	return strings.Compare(a.Title, b.Title)
}

func sortResource(a, b *Resource) int {
	return strings.Compare(a.FQDN, b.FQDN)
}

// sortPinned puts the newest release of each architecture first
func sortPinned(a, b *PinnedSoftware) int {
	return cmp.Or(
		strings.Compare(b.Arch, a.Arch),
		strings.Compare(b.Release, a.Release),
	)
}

// sortedUnique sorts a copy of items and drops repeated entries
func sortedUnique[T comparable](items []T, cmpFunc func(a, b T) int) []T {
	ret := make([]T, 0, len(items))
	seen := make(map[T]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		ret = append(ret, item)
	}
	slices.SortStableFunc(ret, cmpFunc)
	return ret
}

// finalize is the last pass: it derives member sets and puts every list in
// its stable order
func (b *builder) finalize() {
	snap := b.snapshot

	// Sites
	for tier, sites := range snap.SitesByTier {
		snap.SitesByTier[tier] = sortedUnique(sites, SortSite)
		for _, site := range sites {
			for title, people := range site.Responsibilities {
				site.Responsibilities[title] = sortedUnique(people, SortPerson)
			}
			for aliasType, aliases := range site.NameAlias {
				site.NameAlias[aliasType] = slices.Sorted(slices.Values(aliases))
			}
			for resType, resources := range site.Resources {
				site.Resources[resType] = sortedUnique(resources, sortResource)
			}
			for ce, pins := range site.PinnedSoftware {
				site.PinnedSoftware[ce] = sortedUnique(pins, sortPinned)
			}
			site.ChildSites = sortedUnique(site.ChildSites, SortSite)
		}
	}
	snap.Tiers = slices.Sorted(maps.Keys(snap.SitesByTier))

	// Groups
	snap.Groups = make([]*Group, 0, len(snap.GroupsByName))
	for _, group := range snap.GroupsByName {
		group.Members = sortedUnique(group.Members, SortPerson)
		snap.Groups = append(snap.Groups, group)
	}
	slices.SortFunc(snap.Groups, SortGroup)

	// Roles
	snap.Roles = make([]*Role, 0, len(snap.RolesByTitle))
	for _, role := range snap.RolesByTitle {
		var members []*Person
		role.SiteMembers = make([]*SiteMembership, 0, len(role.Site))
		for name, people := range role.Site {
			people = sortedUnique(people, SortPerson)
			role.Site[name] = people
			members = append(members, people...)
			role.SiteMembers = append(role.SiteMembers, &SiteMembership{
				Site:   snap.SitesByName[name],
				People: people,
			})
		}
		slices.SortFunc(role.SiteMembers, func(a, b *SiteMembership) int {
			return SortSite(a.Site, b.Site)
		})
		role.GroupMembers = make([]*GroupMembership, 0, len(role.Group))
		for name, people := range role.Group {
			people = sortedUnique(people, SortPerson)
			role.Group[name] = people
			members = append(members, people...)
			role.GroupMembers = append(role.GroupMembers, &GroupMembership{
				Group:  snap.GroupsByName[name],
				People: people,
			})
		}
		slices.SortFunc(role.GroupMembers, func(a, b *GroupMembership) int {
			return SortGroup(a.Group, b.Group)
		})
		role.Members = sortedUnique(members, SortPerson)
		snap.Roles = append(snap.Roles, role)
	}
	slices.SortFunc(snap.Roles, SortRole)

	// People
	snap.People = make([]*Person, 0, len(snap.PeopleByMail))
	for _, person := range snap.PeopleByMail {
		for _, pr := range person.Roles {
			pr.Site = sortedUnique(pr.Site, SortSite)
			pr.Group = sortedUnique(pr.Group, SortGroup)
			for _, site := range pr.Site {
				person.Sites[site.CanonicalName] = site
			}
			for _, group := range pr.Group {
				person.Groups[group.Name] = group
			}
		}
		snap.People = append(snap.People, person)
	}
	slices.SortFunc(snap.People, SortPerson)
}
