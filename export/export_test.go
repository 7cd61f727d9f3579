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

package export_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitedb/sitesync/export"
	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/resource"
)

func testSnapshot() *graph.Snapshot {
	return graph.Build(graph.Tables{
		resource.Roles:  {{"title": "Site Admin"}, {"title": "Global Admin"}},
		resource.Groups: {{"name": "global"}},
		resource.People: {
			{"email": "jdoe@example.org", "surname": "Doe", "forename": "Jane", "username": "jdoe"},
			{"email": "al@example.org", "surname": "Smith", "forename": "Al"},
		},
		resource.Sites: {
			{"name": "example", "tier": "Tier-2"},
			{"name": "child", "tier": "Tier-3"},
		},
		resource.SiteNames: {
			{"site_name": "example", "type": "cms", "alias": "T2_US_Example"},
			{"site_name": "example", "type": "lcg", "alias": "EXAMPLE"},
		},
		resource.SiteResources: {
			{"name": "example", "type": "CE", "fqdn": "ce.example.org"},
			{"name": "example", "type": "SE", "fqdn": "se.example.org"},
		},
		resource.SiteAssociations: {{"parent_site": "example", "child_site": "child"}},
		resource.ResourcePledges: {
			{"site": "example", "quarter": "2024Q1", "pledge_date": float64(1700000000)},
		},
		resource.PinnedSoftware: {
			{"site": "example", "ce": "ce.example.org", "arch": "x86_64", "release": "1.0"},
		},
		resource.SiteResponsibilities: {
			{"site": "example", "email": "jdoe@example.org", "role": "Site Admin"},
			{"site": "example", "email": "al@example.org", "role": "Site Admin"},
		},
		resource.GroupResponsibilities: {
			{"user_group": "global", "email": "al@example.org", "role": "Global Admin"},
		},
	}, "prod", false)
}

func count(t *testing.T, store *export.Store, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.DB().Model(model).Count(&n).Error)
	return n
}

func TestWriteSnapshot(t *testing.T) {
	store, err := export.Open(filepath.Join(t.TempDir(), "sites.sqlite"), nil)
	require.NoError(t, err)
	defer store.Close()

	snap := testSnapshot()
	require.NoError(t, store.Write(context.Background(), snap))

	require.Equal(t, int64(2), count(t, store, &export.Site{}))
	require.Equal(t, int64(2), count(t, store, &export.SiteAlias{}))
	require.Equal(t, int64(2), count(t, store, &export.SiteResource{}))
	require.Equal(t, int64(1), count(t, store, &export.ResourcePledge{}))
	require.Equal(t, int64(1), count(t, store, &export.PinnedSoftware{}))
	require.Equal(t, int64(2), count(t, store, &export.Person{}))
	require.Equal(t, int64(2), count(t, store, &export.Role{}))
	require.Equal(t, int64(1), count(t, store, &export.Group{}))
	require.Equal(t, int64(2), count(t, store, &export.SiteResponsibility{}))
	require.Equal(t, int64(1), count(t, store, &export.GroupResponsibility{}))

	var site export.Site
	require.NoError(t, store.DB().Where("name = ?", "example").First(&site).Error)
	require.Equal(t, "T2_US_Example", site.CanonicalName)
	require.Equal(t, "us", site.Country)

	var child export.Site
	require.NoError(t, store.DB().Where("name = ?", "child").First(&child).Error)
	require.Equal(t, "example", child.ParentSite)

	var pledge export.ResourcePledge
	require.NoError(t, store.DB().First(&pledge).Error)
	require.Equal(t, "1700000000", pledge.PledgeDate)

	var meta export.Meta
	require.NoError(t, store.DB().First(&meta).Error)
	require.Equal(t, "prod", meta.Instance)
	require.False(t, meta.Partial)

	// A second export replaces the first
	require.NoError(t, store.Write(context.Background(), snap))
	require.Equal(t, int64(2), count(t, store, &export.Site{}))
	require.Equal(t, int64(1), count(t, store, &export.Meta{}))
}

func TestWriteInMemory(t *testing.T) {
	store, err := export.Open("", nil)
	require.NoError(t, err)
	defer store.Close()
	require.ErrorIs(t, store.Write(context.Background(), nil), export.ErrNoSnapshot)
	require.NoError(t, store.Write(context.Background(), graph.Build(graph.Tables{}, "dev", true)))
	require.Equal(t, int64(0), count(t, store, &export.Site{}))
	require.Equal(t, int64(1), count(t, store, &export.Meta{}))
}
