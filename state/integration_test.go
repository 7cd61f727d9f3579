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

package state_test

import (
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/resource"
	"github.com/sitedb/sitesync/state"
	"github.com/sitedb/sitesync/transport"
)

var serverBodies = map[string]string{
	resource.WhoAmI: `{"result": [{"login": "asmith"}]}`,
	resource.Roles:  `{"result": [{"title": "Site Executive"}]}`,
	resource.Groups: `{"result": []}`,
	resource.People: `{"desc": {"columns": ["email", "surname", "forename", "username", "im_handle"]},
		"result": [["al@example.org", "Smith", "Al", "asmith", "none"]]}`,
	resource.Sites: `{"desc": {"columns": ["name", "tier"]},
		"result": [["example", "Tier-2"], ["other", "Tier-1"]]}`,
	resource.SiteNames: `{"desc": {"columns": ["site_name", "type", "alias"]},
		"result": [["example", "cms", "T2_US_Example"], ["other", "cms", "T1_DE_Other"]]}`,
	resource.SiteResponsibilities: `{"desc": {"columns": ["site", "email", "role"]},
		"result": [["example", "al@example.org", "Site Executive"]]}`,
}

type dataServer struct {
	requests map[string][]http.Header
	mu       sync.Mutex
}

func (d *dataServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	instance := path.Base(path.Dir(r.URL.Path))
	name := path.Base(r.URL.Path)
	d.mu.Lock()
	d.requests[instance+"/"+name] = append(d.requests[instance+"/"+name], r.Header.Clone())
	d.mu.Unlock()
	body, ok := serverBodies[name]
	if !ok {
		body = `{"result": []}`
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (d *dataServer) headers(key string) []http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[key]
}

func TestStateAgainstServer(t *testing.T) {
	srv := &dataServer{requests: make(map[string][]http.Header)}
	server := httptest.NewServer(srv)
	defer server.Close()

	client, err := transport.NewClient(server.URL)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	updates := make(chan *graph.Snapshot, 10)
	s, err := state.New(state.Config{
		Fetcher:      client,
		Instance:     "prod",
		PromRegistry: reg,
		QuietPeriod:  time.Hour,
		OnUpdate: func(snap *graph.Snapshot) {
			updates <- snap
		},
		OnError: func(report state.ErrorReport) {
			t.Errorf("unexpected error report: %s", report.Message)
		},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RequireAll())
	var snap *graph.Snapshot
	select {
	case snap = <-updates:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for snapshot")
	}
	require.False(t, snap.Partial)
	require.True(t, s.Complete())
	require.Same(t, snap, s.Snapshot())

	for _, name := range resource.Catalog {
		headers := srv.headers("prod/" + name)
		require.Len(t, headers, 1, name)
		require.Equal(t, "application/json", headers[0].Get("Accept"), name)
		require.Equal(t, transport.CacheBypass, headers[0].Get("Cache-Control"), name)
	}

	site := snap.SitesByCMS["T2_US_Example"]
	require.NotNil(t, site)
	require.Equal(t, "us", site.Country)
	caller := snap.Caller()
	require.NotNil(t, caller)
	require.Equal(t, "Al Smith", caller.Fullname)
	require.Empty(t, caller.IMHandle)
	require.True(t, s.HasSiteRole("site-executive", "T2_US_Example"))
	require.True(t, s.HasSiteRole("Site Executive", "example"))
	require.False(t, s.HasSiteRole("Site Executive", "T1_DE_Other"))
	require.False(t, s.IsGlobalAdmin())

	require.NoError(t, testutil.GatherAndCompare(
		reg,
		strings.NewReader(`
# HELP sitesync_complete whether every resource is valid (0 or 1)
# TYPE sitesync_complete gauge
sitesync_complete 1
`),
		"sitesync_complete",
	))
	count, err := testutil.GatherAndCount(reg, "sitesync_fetches_total")
	require.NoError(t, err)
	require.Equal(t, len(resource.Catalog), count)

	// After a switch every resource is fetched again from the new instance
	require.NoError(t, s.SwitchInstance("dev"))
	require.NoError(t, s.RequireAll())
	select {
	case snap = <-updates:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for snapshot")
	}
	require.Equal(t, "dev", snap.Instance)
	for _, name := range resource.Catalog {
		headers := srv.headers("dev/" + name)
		require.Len(t, headers, 1, name)
		require.Equal(t, transport.CacheBypass, headers[0].Get("Cache-Control"), name)
	}
}
