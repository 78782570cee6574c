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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/coverage-agent/pkg/coverage"
)

// Writer saves runs to a report file. The file is replaced atomically, a
// reader never sees a partially written report.
type Writer struct {
	logger  log.Logger
	metrics *metrics

	path string
	opts EncodeOptions

	// MaxElapsedTime bounds the retries of a failing save.
	MaxElapsedTime time.Duration
}

// NewWriter returns a writer saving to path.
func NewWriter(logger log.Logger, reg prometheus.Registerer, path string, opts EncodeOptions) *Writer {
	return &Writer{
		logger:         logger,
		metrics:        newMetrics(reg),
		path:           path,
		opts:           opts,
		MaxElapsedTime: 10 * time.Second,
	}
}

// Path returns the report file name.
func (w *Writer) Path() string { return w.path }

// Save finishes every unit of run and writes the report.
func (w *Writer) Save(ctx context.Context, run *coverage.Run) error {
	start := time.Now()
	defer func() {
		w.metrics.saveDuration.Observe(time.Since(start).Seconds())
	}()

	run.Finish()
	data, err := AppendReport(nil, run, w.opts)
	if err != nil {
		w.metrics.saves.WithLabelValues(resultError).Inc()
		return fmt.Errorf("encode report: %w", err)
	}

	expbackOff := backoff.NewExponentialBackOff()
	expbackOff.MaxElapsedTime = w.MaxElapsedTime
	expbackOff.InitialInterval = 100 * time.Millisecond

	err = backoff.Retry(func() error {
		err := writeFile(w.path, data)
		if err != nil && expbackOff.NextBackOff().Nanoseconds() > 0 {
			w.metrics.saveRetries.Inc()
			level.Debug(w.logger).Log(
				"msg", "failed to write coverage report",
				"retry", expbackOff.NextBackOff(),
				"path", w.path,
				"err", err,
			)
		}
		return err
	}, backoff.WithContext(expbackOff, ctx))
	if err != nil {
		w.metrics.saves.WithLabelValues(resultError).Inc()
		level.Warn(w.logger).Log("msg", "failed to write coverage report", "path", w.path, "err", err)
		return err
	}

	w.metrics.saves.WithLabelValues(resultSuccess).Inc()
	w.metrics.bytesWritten.Add(float64(len(data)))
	level.Debug(w.logger).Log("msg", "coverage report written", "path", w.path, "units", run.Len(), "bytes", len(data))
	return nil
}

// writeFile writes data next to name and renames it into place.
func writeFile(name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := name + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, name)
}
