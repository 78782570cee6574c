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

package coverage

import (
	"fmt"
	"sync"

	"github.com/armon/circbuf"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultTailSize = 16 << 10 // 16KiB

var _ ErrorReporter = (*LogErrorReporter)(nil)

// LogErrorReporter logs every diagnostic and keeps the most recent ones in
// a bounded buffer so they can be dumped when the process shuts down.
type LogErrorReporter struct {
	logger   log.Logger
	reported *prometheus.CounterVec

	mtx  sync.Mutex
	tail *circbuf.Buffer
}

// NewLogErrorReporter creates a LogErrorReporter keeping up to tailSize
// bytes of recent diagnostics. A non-positive tailSize selects the default.
func NewLogErrorReporter(logger log.Logger, reg prometheus.Registerer, tailSize int64) *LogErrorReporter {
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}
	tail, err := circbuf.NewBuffer(tailSize)
	if err != nil {
		// Only fails for non-positive sizes.
		panic(err)
	}
	return &LogErrorReporter{
		logger: logger,
		reported: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_agent_diagnostics_total",
			Help: "Total number of non-fatal coverage diagnostics by operation.",
		}, []string{"op"}),
		tail: tail,
	}
}

// Report implements ErrorReporter.
func (r *LogErrorReporter) Report(op string, err error) {
	r.reported.WithLabelValues(op).Inc()
	level.Warn(r.logger).Log("msg", "coverage diagnostic", "op", op, "err", err)

	r.mtx.Lock()
	defer r.mtx.Unlock()
	// Writes to a circbuf.Buffer never fail.
	_, _ = fmt.Fprintf(r.tail, "%s: %v\n", op, err)
}

// Tail returns the most recent diagnostics, oldest first.
func (r *LogErrorReporter) Tail() string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.tail.String()
}

// TotalWritten returns the number of bytes of diagnostics ever reported,
// including those no longer held in the tail.
func (r *LogErrorReporter) TotalWritten() int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.tail.TotalWritten()
}
