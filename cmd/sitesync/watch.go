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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sitedb/sitesync/export"
	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/internal/config"
)

const shutdownTimeout = 10 * time.Second

var watchFlags = struct {
	export bool
}{}

func watchRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		cmd.Context(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	a, err := newApp(signalCtx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
		}
	}()

	var store *export.Store
	if watchFlags.export {
		store, err = export.Open(cfg.ExportPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	// Metrics listener
	metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	logger.Info(
		"serving prometheus metrics on "+metricsAddr,
		"component", programName,
	)

	g, ctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return watchLoop(ctx, a, cfg, logger, store)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete", "component", programName)
	return nil
}

// watchLoop refreshes every resource on an interval until ctx is done. Errors
// from the server are logged and retried on the next tick.
func watchLoop(
	ctx context.Context,
	a *app,
	cfg *config.Config,
	logger *slog.Logger,
	store *export.Store,
) error {
	if err := a.state.RequireAll(); err != nil {
		return err
	}
	ticker := time.NewTicker(cfg.WatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			logger.Debug("refreshing", "component", programName)
			if err := a.state.Invalidate(); err != nil {
				return err
			}
			if err := a.state.RequireAll(); err != nil {
				return err
			}
		case snap := <-a.updates:
			if snap.Partial {
				continue
			}
			logUpdate(logger, snap)
			if store != nil {
				if err := store.Write(ctx, snap); err != nil {
					logger.Error(
						"export failed",
						"component", programName,
						"error", err,
					)
				}
			}
		case report := <-a.reports:
			logger.Error(
				report.Message,
				"component", programName,
				"resource", report.Resource,
				"category", string(report.Category),
				"file", report.File,
				"line", report.Line,
			)
		}
	}
}

func logUpdate(logger *slog.Logger, snap *graph.Snapshot) {
	logger.Info(
		"snapshot updated",
		"component", programName,
		"instance", snap.Instance,
		"tiers", len(snap.Tiers),
		"sites", len(snap.SitesByName),
		"people", len(snap.People),
	)
}

func watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the site database mirrored and serve metrics",
		Run: func(cmd *cobra.Command, args []string) {
			if err := watchRun(cmd, configOrExit(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		BoolVar(&watchFlags.export, "export", false, "write every complete snapshot to the export database")
	return cmd
}
