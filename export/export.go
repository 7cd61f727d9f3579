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

// Package export writes a snapshot into a SQLite database for offline
// inspection
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/sitedb/sitesync/graph"
)

const batchSize = 500

var ErrNoSnapshot = errors.New("no snapshot to export")

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string
}

// Open creates or opens the export database at path. An empty path uses an
// in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	dsn := "file::memory:"
	if path != "" {
		// WAL journal mode, disable sync on write
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=sync(OFF)",
			path,
		)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("opening export database: %w", err)
	}
	s := &Store{
		db:     db,
		logger: logger.With("component", "export"),
		path:   path,
	}
	if path == "" {
		// Every connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = s.Close()
		return nil, err
	}
	for _, model := range MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := s.db.AutoMigrate(model); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}
	return s, nil
}

// DB returns the underlying database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Write replaces the database contents with snap in a single transaction
func (s *Store) Write(ctx context.Context, snap *graph.Snapshot) error {
	if snap == nil {
		return ErrNoSnapshot
	}
	tables := flatten(snap)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range MigrateModels {
			result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Delete(model)
			if result.Error != nil {
				return result.Error
			}
		}
		if err := tx.Create(&Meta{
			Instance:   snap.Instance,
			Partial:    snap.Partial,
			ExportedAt: time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		return tables.create(tx)
	})
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	s.logger.Info(
		"exported snapshot",
		"path", s.path,
		"instance", snap.Instance,
		"sites", len(tables.sites),
		"people", len(tables.people),
	)
	return nil
}

type exportTables struct {
	sites      []Site
	aliases    []SiteAlias
	resources  []SiteResource
	pledges    []ResourcePledge
	pinned     []PinnedSoftware
	people     []Person
	roles      []Role
	groups     []Group
	siteResps  []SiteResponsibility
	groupResps []GroupResponsibility
}

func createRows[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, batchSize).Error
}

func (t *exportTables) create(tx *gorm.DB) error {
	return errors.Join(
		createRows(tx, t.sites),
		createRows(tx, t.aliases),
		createRows(tx, t.resources),
		createRows(tx, t.pledges),
		createRows(tx, t.pinned),
		createRows(tx, t.people),
		createRows(tx, t.roles),
		createRows(tx, t.groups),
		createRows(tx, t.siteResps),
		createRows(tx, t.groupResps),
	)
}

// flatten turns the snapshot graph back into rows, in snapshot order
func flatten(snap *graph.Snapshot) *exportTables {
	t := &exportTables{}
	for _, tier := range snap.Tiers {
		for _, site := range snap.SitesByTier[tier] {
			row := Site{
				Name:          site.Name,
				CanonicalName: site.CanonicalName,
				Tier:          site.Tier,
				Country:       site.Country,
			}
			if site.ParentSite != nil {
				row.ParentSite = site.ParentSite.Name
			}
			t.sites = append(t.sites, row)
			for _, aliasType := range sortedKeys(site.NameAlias) {
				for _, alias := range site.NameAlias[aliasType] {
					t.aliases = append(t.aliases, SiteAlias{
						Site:  site.Name,
						Type:  aliasType,
						Alias: alias,
					})
				}
			}
			for _, resType := range sortedKeys(site.Resources) {
				for _, res := range site.Resources[resType] {
					t.resources = append(t.resources, SiteResource{
						Site: site.Name,
						Type: res.Type,
						FQDN: res.FQDN,
					})
				}
			}
			for _, quarter := range sortedKeys(site.ResourcePledges) {
				pledge := site.ResourcePledges[quarter]
				t.pledges = append(t.pledges, ResourcePledge{
					Site:       site.Name,
					Quarter:    pledge.Quarter,
					PledgeDate: cellString(pledge.PledgeDate),
				})
			}
			for _, ce := range sortedKeys(site.PinnedSoftware) {
				for _, pin := range site.PinnedSoftware[ce] {
					t.pinned = append(t.pinned, PinnedSoftware{
						Site:    site.Name,
						CE:      pin.CE,
						Arch:    pin.Arch,
						Release: pin.Release,
					})
				}
			}
		}
	}
	for _, p := range snap.People {
		t.people = append(t.people, Person{
			Email:    p.Email,
			Surname:  p.Surname,
			Forename: p.Forename,
			Fullname: p.Fullname,
			Username: p.Username,
			IMHandle: p.IMHandle,
		})
	}
	for _, g := range snap.Groups {
		t.groups = append(t.groups, Group{
			Name:          g.Name,
			CanonicalName: g.CanonicalName,
		})
	}
	for _, role := range snap.Roles {
		t.roles = append(t.roles, Role{
			Title:         role.Title,
			CanonicalName: role.CanonicalName,
		})
		for _, m := range role.SiteMembers {
			for _, p := range m.People {
				t.siteResps = append(t.siteResps, SiteResponsibility{
					Site:  m.Site.Name,
					Role:  role.Title,
					Email: p.Email,
				})
			}
		}
		for _, m := range role.GroupMembers {
			for _, p := range m.People {
				t.groupResps = append(t.groupResps, GroupResponsibility{
					Group: m.Group.Name,
					Role:  role.Title,
					Email: p.Email,
				})
			}
		}
	}
	return t
}
