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
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "sitesync.config"

const envPrefix = "sitesync"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

var (
	ErrNoServerUrl = errors.New("no server URL configured")
	ErrNoInstance  = errors.New("no instance configured")
)

type tempConfig struct {
	Config yaml.Node `yaml:"config,omitempty"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type Config struct {
	ServerUrl     string        `yaml:"serverUrl"     split_words:"true"`
	Instance      string        `yaml:"instance"`
	BindAddr      string        `yaml:"bindAddr"      split_words:"true"`
	ExportPath    string        `yaml:"exportPath"    split_words:"true"`
	Cache         CacheConfig   `yaml:"cache"`
	QuietPeriod   time.Duration `yaml:"quietPeriod"   split_words:"true"`
	WatchInterval time.Duration `yaml:"watchInterval" split_words:"true"`
	MetricsPort   uint          `yaml:"metricsPort"   split_words:"true"`
	Tracing       bool          `yaml:"tracing"`
	TracingStdout bool          `yaml:"tracingStdout" split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		ServerUrl:  "http://localhost:8080/sitedb",
		Instance:   "prod",
		BindAddr:   "0.0.0.0",
		ExportPath: "sitesync.sqlite",
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		QuietPeriod:   500 * time.Millisecond,
		WatchInterval: 5 * time.Minute,
		MetricsPort:   12799,
	}
}

// LoadConfig returns the defaults overlaid with the config file, if any, and
// then the environment. Without an explicit file ~/.sitesync/sitesync.yaml
// and /etc/sitesync/sitesync.yaml are tried in turn.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".sitesync", "sitesync.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/sitesync/sitesync.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if tempCfg.Config.Kind != 0 {
			// Overlay config section onto existing defaults
			if err := tempCfg.Config.Decode(cfg); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// A file without a config section is the config itself
			if err := yaml.Unmarshal(buf, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerUrl == "" {
		return ErrNoServerUrl
	}
	u, err := url.Parse(c.ServerUrl)
	if err != nil {
		return fmt.Errorf("invalid serverUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf(
			"invalid serverUrl: %q (scheme must be 'http' or 'https')",
			c.ServerUrl,
		)
	}
	if c.Instance == "" {
		return ErrNoInstance
	}
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("invalid quietPeriod: %s", c.QuietPeriod)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("invalid watchInterval: %s", c.WatchInterval)
	}
	return nil
}
