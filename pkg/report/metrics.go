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

package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

type metrics struct {
	saves        *prometheus.CounterVec
	saveRetries  prometheus.Counter
	saveDuration prometheus.Histogram
	bytesWritten prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		saves: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_agent_report_saves_total",
			Help: "Total number of coverage report saves.",
		}, []string{"result"}),
		saveRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "coverage_agent_report_save_retries_total",
			Help: "Total number of retried coverage report writes.",
		}),
		saveDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:                        "coverage_agent_report_save_duration_seconds",
			Help:                        "Time spent encoding and writing a coverage report, retries included.",
			NativeHistogramBucketFactor: 1.1,
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "coverage_agent_report_written_bytes_total",
			Help: "Total number of coverage report bytes written.",
		}),
	}
	m.saves.WithLabelValues(resultSuccess)
	m.saves.WithLabelValues(resultError)
	return m
}
