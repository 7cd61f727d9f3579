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

package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test-sitesync.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpFile
}

func TestLoad_CompareFullStruct(t *testing.T) {
	tmpFile := writeConfig(t, `
serverUrl: "https://cmsweb.example.org/sitedb"
instance: "dev"
bindAddr: "127.0.0.1"
exportPath: "/tmp/sites.sqlite"
cache:
  enabled: false
  ttl: "1m"
quietPeriod: "250ms"
watchInterval: "30s"
metricsPort: 8088
tracing: true
tracingStdout: true
`)
	expected := &Config{
		ServerUrl:  "https://cmsweb.example.org/sitedb",
		Instance:   "dev",
		BindAddr:   "127.0.0.1",
		ExportPath: "/tmp/sites.sqlite",
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Minute,
		},
		QuietPeriod:   250 * time.Millisecond,
		WatchInterval: 30 * time.Second,
		MetricsPort:   8088,
		Tracing:       true,
		TracingStdout: true,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_ConfigSectionOverlaysDefaults(t *testing.T) {
	tmpFile := writeConfig(t, `
config:
  instance: "int"
`)
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	expected := defaultConfig()
	expected.Instance = "int"
	require.Equal(t, expected, cfg)
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			defaultConfig(),
			cfg,
		)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	tmpFile := writeConfig(t, `
instance: "dev"
metricsPort: 8088
`)
	t.Setenv("SITESYNC_INSTANCE", "int")
	t.Setenv("SITESYNC_QUIET_PERIOD", "2s")
	t.Setenv("SITESYNC_CACHE_ENABLED", "false")
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.Equal(t, "int", cfg.Instance)
	require.Equal(t, 2*time.Second, cfg.QuietPeriod)
	require.False(t, cfg.Cache.Enabled)
	require.Equal(t, uint(8088), cfg.MetricsPort)
}

func TestLoad_Invalid(t *testing.T) {
	testDefs := []struct {
		content string
		errText string
	}{
		{`serverUrl: "ftp://example.org"`, "scheme must be"},
		{`instance: ""`, ErrNoInstance.Error()},
		{`quietPeriod: "0s"`, "invalid quietPeriod"},
		{`watchInterval: "-1s"`, "invalid watchInterval"},
		{`quietPeriod: "soon"`, "error parsing config file"},
	}
	for _, testDef := range testDefs {
		_, err := LoadConfig(writeConfig(t, testDef.content))
		require.ErrorContains(t, err, testDef.errText, testDef.content)
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "error reading config file")
}

func TestContext(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	require.Same(t, cfg, FromContext(ctx))
}
