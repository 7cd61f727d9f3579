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

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/internal/config"
)

const defaultSyncTimeout = 2 * time.Minute

var syncFlags = struct {
	timeout time.Duration
}{}

type tierSummary struct {
	Tier  string   `yaml:"tier"`
	Sites []string `yaml:"sites"`
}

type snapshotSummary struct {
	Instance string         `yaml:"instance"`
	Caller   string         `yaml:"caller,omitempty"`
	Tiers    []tierSummary  `yaml:"tiers"`
	People   int            `yaml:"people"`
	Roles    int            `yaml:"roles"`
	Groups   int            `yaml:"groups"`
	Dropped  map[string]int `yaml:"dropped,omitempty"`
}

func summarize(snap *graph.Snapshot) snapshotSummary {
	ret := snapshotSummary{
		Instance: snap.Instance,
		People:   len(snap.People),
		Roles:    len(snap.Roles),
		Groups:   len(snap.Groups),
		Dropped:  snap.Dropped,
	}
	if caller := snap.Caller(); caller != nil {
		ret.Caller = caller.Fullname
	}
	for _, tier := range snap.Tiers {
		ts := tierSummary{Tier: tier}
		for _, site := range snap.SitesByTier[tier] {
			ts.Sites = append(ts.Sites, site.CanonicalName)
		}
		ret.Tiers = append(ret.Tiers, ts)
	}
	return ret
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// loadSnapshot runs a State until its first complete snapshot
func loadSnapshot(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*graph.Snapshot, error) {
	timeout := syncFlags.timeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown errors occurred", "error", err)
		}
	}()
	start := time.Now()
	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info(
		"loaded snapshot",
		"component", programName,
		"instance", snap.Instance,
		"sites", len(snap.SitesByName),
		"duration", time.Since(start).String(),
	)
	return snap, nil
}

func syncRun(cmd *cobra.Command, cfg *config.Config) {
	logger := commonRun()
	snap, err := loadSnapshot(cmd.Context(), cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if err := writeYAML(os.Stdout, summarize(snap)); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func syncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load every resource once and print a summary",
		Run: func(cmd *cobra.Command, args []string) {
			syncRun(cmd, configOrExit(cmd))
		},
	}
	addTimeoutFlag(cmd)
	return cmd
}

func addTimeoutFlag(cmd *cobra.Command) {
	cmd.Flags().
		DurationVar(&syncFlags.timeout, "timeout", defaultSyncTimeout, "give up loading after this long")
}
