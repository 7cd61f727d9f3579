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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	requests    *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func newClientMetrics(registry prometheus.Registerer) *clientMetrics {
	promautoFactory := promauto.With(registry)
	return &clientMetrics{
		requests: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_transport_requests_total",
				Help: "data server requests by reply status",
			},
			[]string{"status"},
		),
		cacheHits: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "sitesync_transport_cache_hits_total",
			Help: "requests answered from the reply cache",
		}),
		cacheMisses: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "sitesync_transport_cache_misses_total",
			Help: "requests sent to the data server",
		}),
	}
}

func (m *clientMetrics) request(status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(status).Inc()
}

func (m *clientMetrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *clientMetrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
