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

// Package graph joins the flat resource tables into one cross-referenced
// object graph of sites, people, roles and groups.
//
// Every join is left-outer: a row that names an unknown site, person, role
// or group is dropped and counted, never reported as an error. Build does not
// modify its input rows and allocates every object and slice afresh, so an
// earlier snapshot stays valid while a new one is built.
package graph

import (
	"github.com/sitedb/sitesync/resource"
)

// Source provides the raw rows of each resource. A nil result is an empty
// table.
type Source interface {
	Rows(name string) []resource.Row
}

// Tables is a Source backed by a map
type Tables map[string][]resource.Row

func (t Tables) Rows(name string) []resource.Row {
	return t[name]
}

type builder struct {
	src      Source
	snapshot *Snapshot
	sites    []*Site
	dropped  map[string]int
}

// Build runs all join passes over the rows of src and returns the resulting
// snapshot. It is deterministic: the same rows always produce an identical
// snapshot.
func Build(src Source, instance string, partial bool) *Snapshot {
	b := &builder{
		src: src,
		snapshot: &Snapshot{
			Instance:     instance,
			Partial:      partial,
			SitesByTier:  make(map[string][]*Site),
			SitesByName:  make(map[string]*Site),
			SitesByCMS:   make(map[string]*Site),
			PeopleByHN:   make(map[string]*Person),
			PeopleByMail: make(map[string]*Person),
			RolesByTitle: make(map[string]*Role),
			GroupsByName: make(map[string]*Group),
		},
		dropped: make(map[string]int),
	}
	b.rolesAndGroups()
	b.identity()
	b.basicSites()
	b.nameAliases()
	b.siteResources()
	b.siteAssociations()
	b.resourcePledges()
	b.pinnedSoftware()
	b.siteResponsibilities()
	b.groupResponsibilities()
	b.finalize()
	b.snapshot.Dropped = b.dropped
	return b.snapshot
}

func (b *builder) drop(name string) {
	b.dropped[name]++
}

// rolesAndGroups is the first pass
func (b *builder) rolesAndGroups() {
	for _, row := range b.src.Rows(resource.Roles) {
		title := field(row, "title")
		b.snapshot.RolesByTitle[title] = &Role{
			Attrs:         row,
			Title:         title,
			CanonicalName: Slug(title),
			Site:          make(map[string][]*Person),
			Group:         make(map[string][]*Person),
		}
	}
	for _, row := range b.src.Rows(resource.Groups) {
		name := field(row, "name")
		b.snapshot.GroupsByName[name] = &Group{
			Attrs:         row,
			Name:          name,
			CanonicalName: Slug(name),
		}
	}
}

// identity parses the caller and the people records
func (b *builder) identity() {
	if rows := b.src.Rows(resource.WhoAmI); len(rows) == 1 {
		b.snapshot.WhoAmI = &WhoAmI{
			Attrs: rows[0],
			Login: field(rows[0], "login"),
			Roles: parseRoleScopes(rows[0]["roles"]),
		}
	}
	whoami := b.snapshot.WhoAmI
	for _, row := range b.src.Rows(resource.People) {
		p := &Person{
			Attrs:    row,
			Email:    field(row, "email"),
			Surname:  field(row, "surname"),
			Forename: field(row, "forename"),
			Username: field(row, "username"),
			IMHandle: normalizeIMHandle(field(row, "im_handle")),
			Roles:    make(map[string]*PersonRole),
			Sites:    make(map[string]*Site),
			Groups:   make(map[string]*Group),
		}
		p.Fullname = p.Email
		if p.Forename != "" && p.Surname != "" {
			p.Fullname = p.Forename + " " + p.Surname
		}
		b.snapshot.PeopleByMail[p.Email] = p
		if p.Username != "" {
			b.snapshot.PeopleByHN[p.Username] = p
		}
	}
	if whoami != nil && whoami.Login != "" {
		whoami.Person = b.snapshot.PeopleByHN[whoami.Login]
	}
}

// parseRoleScopes reads the optional role map of the who-am-i record:
// {"role": {"group": ["name", ...], "site": ["name", ...]}, ...}
func parseRoleScopes(v any) map[string]RoleScope {
	roles, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	ret := make(map[string]RoleScope, len(roles))
	for role, scopeVal := range roles {
		scope, ok := scopeVal.(map[string]any)
		if !ok {
			continue
		}
		ret[role] = RoleScope{
			Group: stringList(scope["group"]),
			Site:  stringList(scope["site"]),
		}
	}
	return ret
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			ret = append(ret, s)
		}
	}
	return ret
}

// basicSites creates every site with empty sub-structures
func (b *builder) basicSites() {
	for _, row := range b.src.Rows(resource.Sites) {
		name := field(row, "name")
		site := &Site{
			Attrs:         row,
			Name:          name,
			CanonicalName: name,
			Tier:          field(row, "tier"),
			NameAlias:     make(map[string][]string),
			Resources: map[string][]*Resource{
				ResourceCE: {},
				ResourceSE: {},
			},
			ResourcePledges:  make(map[string]*Pledge),
			PinnedSoftware:   make(map[string][]*PinnedSoftware),
			Responsibilities: make(map[string][]*Person),
		}
		if _, ok := b.snapshot.SitesByName[name]; ok {
			// A later record for the same site replaces an earlier one
			for i, s := range b.sites {
				if s.Name == name {
					b.sites[i] = site
				}
			}
		} else {
			b.sites = append(b.sites, site)
		}
		b.snapshot.SitesByName[name] = site
	}
	for _, site := range b.sites {
		b.snapshot.SitesByTier[site.Tier] = append(
			b.snapshot.SitesByTier[site.Tier],
			site,
		)
	}
}

// nameAliases attaches alias names and applies the first CMS alias as the
// canonical site name
func (b *builder) nameAliases() {
	for _, row := range b.src.Rows(resource.SiteNames) {
		site, ok := b.snapshot.SitesByName[field(row, "site_name")]
		if !ok {
			b.drop(resource.SiteNames)
			continue
		}
		aliasType := field(row, "type")
		alias := field(row, "alias")
		site.NameAlias[aliasType] = append(site.NameAlias[aliasType], alias)
		if aliasType == AliasCMS && site.CanonicalName == site.Name {
			site.Country = CountryCode(alias)
			site.CanonicalName = alias
			b.snapshot.SitesByCMS[alias] = site
		}
	}
}

func (b *builder) siteResources() {
	for _, row := range b.src.Rows(resource.SiteResources) {
		site, ok := b.snapshot.SitesByName[field(row, "name")]
		if !ok {
			b.drop(resource.SiteResources)
			continue
		}
		res := &Resource{
			Attrs: row,
			Type:  field(row, "type"),
			FQDN:  field(row, "fqdn"),
		}
		site.Resources[res.Type] = append(site.Resources[res.Type], res)
	}
}

func (b *builder) siteAssociations() {
	for _, row := range b.src.Rows(resource.SiteAssociations) {
		parent, ok := b.snapshot.SitesByName[field(row, "parent_site")]
		if !ok {
			b.drop(resource.SiteAssociations)
			continue
		}
		child, ok := b.snapshot.SitesByName[field(row, "child_site")]
		if !ok || child == parent {
			b.drop(resource.SiteAssociations)
			continue
		}
		if child.ParentSite == parent {
			continue
		}
		// A site has one parent; moving it keeps both sides consistent
		if old := child.ParentSite; old != nil {
			old.ChildSites = removeSite(old.ChildSites, child)
		}
		parent.ChildSites = append(parent.ChildSites, child)
		child.ParentSite = parent
	}
}

func removeSite(sites []*Site, site *Site) []*Site {
	ret := make([]*Site, 0, len(sites))
	for _, s := range sites {
		if s != site {
			ret = append(ret, s)
		}
	}
	return ret
}

// resourcePledges keeps the most recent pledge per site and quarter
func (b *builder) resourcePledges() {
	for _, row := range b.src.Rows(resource.ResourcePledges) {
		site, ok := b.snapshot.SitesByName[field(row, "site")]
		if !ok {
			b.drop(resource.ResourcePledges)
			continue
		}
		pledge := &Pledge{
			Attrs:      row,
			Quarter:    field(row, "quarter"),
			PledgeDate: row["pledge_date"],
		}
		cur, ok := site.ResourcePledges[pledge.Quarter]
		if !ok || cellBefore(cur.PledgeDate, pledge.PledgeDate) {
			site.ResourcePledges[pledge.Quarter] = pledge
		}
	}
}

func (b *builder) pinnedSoftware() {
	for _, row := range b.src.Rows(resource.PinnedSoftware) {
		site, ok := b.snapshot.SitesByName[field(row, "site")]
		if !ok {
			b.drop(resource.PinnedSoftware)
			continue
		}
		pin := &PinnedSoftware{
			Attrs:   row,
			CE:      field(row, "ce"),
			Arch:    field(row, "arch"),
			Release: field(row, "release"),
		}
		site.PinnedSoftware[pin.CE] = append(site.PinnedSoftware[pin.CE], pin)
	}
}

func (p *Person) role(title string) *PersonRole {
	r, ok := p.Roles[title]
	if !ok {
		r = &PersonRole{}
		p.Roles[title] = r
	}
	return r
}

// siteResponsibilities associates site, role and person
func (b *builder) siteResponsibilities() {
	for _, row := range b.src.Rows(resource.SiteResponsibilities) {
		siteName := field(row, "site")
		title := field(row, "role")
		site, siteOk := b.snapshot.SitesByName[siteName]
		person, personOk := b.snapshot.PeopleByMail[field(row, "email")]
		role, roleOk := b.snapshot.RolesByTitle[title]
		if !siteOk || !personOk || !roleOk {
			b.drop(resource.SiteResponsibilities)
			continue
		}
		site.Responsibilities[title] = append(site.Responsibilities[title], person)
		pr := person.role(title)
		pr.Site = append(pr.Site, site)
		role.Site[siteName] = append(role.Site[siteName], person)
	}
}

// groupResponsibilities associates group, role and person
func (b *builder) groupResponsibilities() {
	for _, row := range b.src.Rows(resource.GroupResponsibilities) {
		groupName := field(row, "user_group")
		title := field(row, "role")
		group, groupOk := b.snapshot.GroupsByName[groupName]
		person, personOk := b.snapshot.PeopleByMail[field(row, "email")]
		role, roleOk := b.snapshot.RolesByTitle[title]
		if !groupOk || !personOk || !roleOk {
			b.drop(resource.GroupResponsibilities)
			continue
		}
		group.Members = append(group.Members, person)
		pr := person.role(title)
		pr.Group = append(pr.Group, group)
		role.Group[groupName] = append(role.Group[groupName], person)
	}
}
