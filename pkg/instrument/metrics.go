// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultExcluded = "excluded"
	resultStopped  = "stopped"
	resultCached   = "cached"
	resultStale    = "stale"
)

type metrics struct {
	units           *prometheus.CounterVec
	suppressed      *prometheus.CounterVec
	transformTime   prometheus.Histogram
	fingerprintDups prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		units: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_agent_units_total",
			Help: "Total number of units seen by the transformer, by strategy or reason for not instrumenting.",
		}, []string{"result"}),
		suppressed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_agent_sites_suppressed_total",
			Help: "Total number of lines, branches and switches removed by method filters.",
		}, []string{"kind"}),
		transformTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:                        "coverage_agent_transform_duration_seconds",
			Help:                        "Time spent instrumenting a single unit.",
			NativeHistogramBucketFactor: 1.1,
		}),
		fingerprintDups: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "coverage_agent_unit_fingerprint_mismatches_total",
			Help: "Total number of units loaded again under a known name with different content.",
		}),
	}
}
