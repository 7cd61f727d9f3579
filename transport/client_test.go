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

package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitesBody = `{"result": [{"name": "T1_CH_CERN"}]}`

func newTestServer(
	t *testing.T,
	handler http.HandlerFunc,
) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestFetchReloadHeaders(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Use t.Errorf (not require) because httptest handlers
		// run in a separate goroutine
		if r.URL.Path != "/data/prod/sites" {
			t.Errorf("expected path /data/prod/sites, got %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept application/json, got %s", r.Header.Get("Accept"))
		}
		if r.Header.Get("Cache-Control") != CacheBypass {
			t.Errorf("expected cache bypass, got %q", r.Header.Get("Cache-Control"))
		}
		if r.Header.Get(headerRequestID) == "" {
			t.Errorf("missing request id")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sitesBody))
	})
	client, err := NewClient(server.URL+"/", WithPromRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	payload, err := client.Fetch(
		context.Background(),
		Request{Instance: "prod", Resource: "sites", Reload: true},
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, payload.StatusCode)
	assert.Equal(t, "application/json", payload.ContentType)
	assert.JSONEq(t, sitesBody, string(payload.Body))
	assert.False(t, payload.FromCache)
}

func TestFetchSoftHasNoBypass(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "" {
			t.Errorf("unexpected Cache-Control %q", r.Header.Get("Cache-Control"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sitesBody))
	})
	client, err := NewClient(server.URL)
	require.NoError(t, err)
	_, err = client.Fetch(
		context.Background(),
		Request{Instance: "prod", Resource: "sites"},
	)
	require.NoError(t, err)
}

func TestFetchConditionalNotModified(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sitesBody))
	})
	client, err := NewClient(server.URL, WithCache(newTestCache(t)))
	require.NoError(t, err)
	req := Request{Instance: "prod", Resource: "sites", Reload: true}
	payload, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, payload.StatusCode)

	req.Reload = false
	req.Revalidate = true
	payload, err = client.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, payload.StatusCode)
	assert.Equal(t, int32(2), calls.Load())

	// Without a value to reuse no conditional request is made
	req.Revalidate = false
	payload, err = client.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, payload.StatusCode)
}

func TestFetchFreshFromCache(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sitesBody))
	})
	client, err := NewClient(server.URL, WithCache(newTestCache(t)))
	require.NoError(t, err)
	req := Request{Instance: "prod", Resource: "sites"}
	_, err = client.Fetch(context.Background(), req)
	require.NoError(t, err)

	payload, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, payload.FromCache)
	assert.Equal(t, http.StatusOK, payload.StatusCode)
	assert.JSONEq(t, sitesBody, string(payload.Body))
	assert.Equal(t, int32(1), calls.Load())

	// A forced reload always reaches the server
	req.Reload = true
	payload, err = client.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, payload.FromCache)
	assert.Equal(t, int32(2), calls.Load())

	// Cache entries are per instance
	_, err = client.Fetch(
		context.Background(),
		Request{Instance: "dev", Resource: "sites"},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchNonJSONNotCached(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	client, err := NewClient(server.URL, WithCache(newTestCache(t)))
	require.NoError(t, err)
	req := Request{Instance: "prod", Resource: "sites"}
	for range 2 {
		payload, err := client.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, payload.FromCache)
		assert.Equal(t, "text/html; charset=utf-8", payload.ContentType)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchContentEncoding(t *testing.T) {
	testDefs := []struct {
		encoding string
		write    func(w http.ResponseWriter)
	}{
		{
			encoding: "gzip",
			write: func(w http.ResponseWriter) {
				gz := gzip.NewWriter(w)
				_, _ = gz.Write([]byte(sitesBody))
				_ = gz.Close()
			},
		},
		{
			encoding: "zstd",
			write: func(w http.ResponseWriter) {
				zw, err := zstd.NewWriter(w)
				if err != nil {
					panic(err)
				}
				_, _ = zw.Write([]byte(sitesBody))
				_ = zw.Close()
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.encoding, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Encoding", testDef.encoding)
				testDef.write(w)
			})
			client, err := NewClient(server.URL)
			require.NoError(t, err)
			payload, err := client.Fetch(
				context.Background(),
				Request{Instance: "prod", Resource: "sites"},
			)
			require.NoError(t, err)
			assert.JSONEq(t, sitesBody, string(payload.Body))
		})
	}
}

func TestFetchErrorStatusIsPayload(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	client, err := NewClient(server.URL, WithCache(newTestCache(t)))
	require.NoError(t, err)
	payload, err := client.Fetch(
		context.Background(),
		Request{Instance: "prod", Resource: "sites"},
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, payload.StatusCode)
}

func TestFetchCancelled(t *testing.T) {
	block := make(chan struct{})
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)
	client, err := NewClient(server.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Fetch(ctx, Request{Instance: "prod", Resource: "sites"})
		errCh <- err
	}()
	cancel()
	err = <-errCh
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.org")
	require.Error(t, err)
	client, err := NewClient("https://cmsweb.example.org/sitedb/api/")
	require.NoError(t, err)
	assert.Equal(
		t,
		"https://cmsweb.example.org/sitedb/api/data/prod/site-names",
		client.URL("prod", "site-names"),
	)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	entry, err := cache.Get("prod/sites")
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, cache.Put("prod/sites", &CacheEntry{
		ETag:        `"abc"`,
		ContentType: "application/json",
		Body:        []byte(sitesBody),
	}))
	entry, err = cache.Get("prod/sites")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, `"abc"`, entry.ETag)
	assert.True(t, entry.Revalidatable())
	assert.Equal(t, []byte(sitesBody), entry.Body)

	require.NoError(t, cache.Delete("prod/sites"))
	entry, err = cache.Get("prod/sites")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
