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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sitedb/sitesync/event"
	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/internal/config"
	"github.com/sitedb/sitesync/state"
	"github.com/sitedb/sitesync/transport"
)

// app bundles a State with everything it was built from
type app struct {
	logger   *slog.Logger
	state    *state.State
	bus      *event.EventBus
	cache    *transport.Cache
	tp       *sdktrace.TracerProvider
	updates  chan *graph.Snapshot
	reports  chan state.ErrorReport
	done     chan struct{}
	registry prometheus.Registerer
}

func newApp(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) (*app, error) {
	a := &app{
		logger:   logger,
		updates:  make(chan *graph.Snapshot, 1),
		reports:  make(chan state.ErrorReport, 1),
		done:     make(chan struct{}),
		registry: registry,
	}
	tp, err := setupTracing(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.tp = tp
	clientOpts := []transport.ClientOption{
		transport.WithLogger(logger),
		transport.WithPromRegistry(registry),
	}
	if tp != nil {
		clientOpts = append(clientOpts, transport.WithTracerProvider(tp))
	}
	if cfg.Cache.Enabled {
		cache, err := transport.NewCache(
			transport.WithCacheLogger(logger),
			transport.WithCacheTTL(cfg.Cache.TTL),
		)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.cache = cache
		clientOpts = append(clientOpts, transport.WithCache(cache))
	}
	client, err := transport.NewClient(cfg.ServerUrl, clientOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.bus = event.NewEventBus(registry, logger)
	stateCfg := state.Config{
		Logger:       logger,
		EventBus:     a.bus,
		PromRegistry: registry,
		Fetcher:      client,
		Instance:     cfg.Instance,
		QuietPeriod:  cfg.QuietPeriod,
		OnUpdate: func(snap *graph.Snapshot) {
			select {
			case a.updates <- snap:
			case <-a.done:
			}
		},
		OnError: func(report state.ErrorReport) {
			select {
			case a.reports <- report:
			case <-a.done:
			}
		},
	}
	if tp != nil {
		stateCfg.TracerProvider = tp
	}
	s, err := state.New(stateCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.state = s
	return a, nil
}

// load requires every resource and waits for the first complete snapshot
func (a *app) load(ctx context.Context) (*graph.Snapshot, error) {
	if err := a.state.RequireAll(); err != nil {
		return nil, err
	}
	return a.waitComplete(ctx)
}

func (a *app) waitComplete(ctx context.Context) (*graph.Snapshot, error) {
	for {
		select {
		case snap := <-a.updates:
			if !snap.Partial {
				return snap, nil
			}
			a.logger.Debug(
				"partial snapshot",
				"component", programName,
				"sites", len(snap.SitesByName),
			)
		case report := <-a.reports:
			return nil, report.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (a *app) Close() error {
	close(a.done)
	var err error
	if a.state != nil {
		err = errors.Join(err, a.state.Close())
	}
	if a.bus != nil {
		a.bus.Stop()
	}
	if a.cache != nil {
		err = errors.Join(err, a.cache.Close())
	}
	if a.tp != nil {
		err = errors.Join(err, a.tp.Shutdown(context.Background()))
	}
	return err
}
