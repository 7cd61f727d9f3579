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

package export

import "time"

// MigrateModels lists every table written by an export
var MigrateModels = []any{
	&Meta{},
	&Site{},
	&SiteAlias{},
	&SiteResource{},
	&ResourcePledge{},
	&PinnedSoftware{},
	&Person{},
	&Role{},
	&Group{},
	&SiteResponsibility{},
	&GroupResponsibility{},
}

type Meta struct {
	ExportedAt time.Time
	Instance   string
	ID         uint `gorm:"primarykey"`
	Partial    bool
}

func (Meta) TableName() string {
	return "meta"
}

type Site struct {
	Name          string `gorm:"uniqueIndex"`
	CanonicalName string `gorm:"index"`
	Tier          string `gorm:"index"`
	Country       string
	ParentSite    string
	ID            uint `gorm:"primarykey"`
}

func (Site) TableName() string {
	return "site"
}

type SiteAlias struct {
	Site  string `gorm:"index"`
	Type  string
	Alias string `gorm:"index"`
	ID    uint   `gorm:"primarykey"`
}

func (SiteAlias) TableName() string {
	return "site_alias"
}

type SiteResource struct {
	Site string `gorm:"index"`
	Type string
	FQDN string
	ID   uint `gorm:"primarykey"`
}

func (SiteResource) TableName() string {
	return "site_resource"
}

type ResourcePledge struct {
	Site       string `gorm:"index"`
	Quarter    string
	PledgeDate string
	ID         uint `gorm:"primarykey"`
}

func (ResourcePledge) TableName() string {
	return "resource_pledge"
}

type PinnedSoftware struct {
	Site    string `gorm:"index"`
	CE      string
	Arch    string
	Release string
	ID      uint `gorm:"primarykey"`
}

func (PinnedSoftware) TableName() string {
	return "pinned_software"
}

type Person struct {
	Email    string `gorm:"uniqueIndex"`
	Surname  string
	Forename string
	Fullname string
	Username string `gorm:"index"`
	IMHandle string
	ID       uint `gorm:"primarykey"`
}

func (Person) TableName() string {
	return "person"
}

type Role struct {
	Title         string `gorm:"uniqueIndex"`
	CanonicalName string
	ID            uint `gorm:"primarykey"`
}

func (Role) TableName() string {
	return "role"
}

type Group struct {
	Name          string `gorm:"uniqueIndex"`
	CanonicalName string
	ID            uint `gorm:"primarykey"`
}

func (Group) TableName() string {
	return "user_group"
}

type SiteResponsibility struct {
	Site  string `gorm:"index"`
	Role  string
	Email string `gorm:"index"`
	ID    uint   `gorm:"primarykey"`
}

func (SiteResponsibility) TableName() string {
	return "site_responsibility"
}

type GroupResponsibility struct {
	Group string `gorm:"column:user_group;index"`
	Role  string
	Email string `gorm:"index"`
	ID    uint   `gorm:"primarykey"`
}

func (GroupResponsibility) TableName() string {
	return "group_responsibility"
}
