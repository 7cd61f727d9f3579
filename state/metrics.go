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

package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type stateMetrics struct {
	fetches         *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	rebuilds        *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	pending         prometheus.Gauge
	complete        prometheus.Gauge
}

func (m *stateMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.fetches = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesync_fetches_total",
			Help: "finished resource fetches by result",
		},
		[]string{"resource", "result"},
	)
	m.fetchErrors = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesync_fetch_errors_total",
			Help: "hard errors by category",
		},
		[]string{"category"},
	)
	m.rebuilds = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesync_rebuilds_total",
			Help: "snapshot rebuilds by kind",
		},
		[]string{"kind"},
	)
	m.rebuildDuration = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitesync_rebuild_duration_seconds",
			Help:    "time taken to rebuild a snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100us to ~1.6s
		},
	)
	m.pending = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "sitesync_resources_pending",
		Help: "resources with a fetch in flight",
	})
	m.complete = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "sitesync_complete",
		Help: "whether every resource is valid (0 or 1)",
	})
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
