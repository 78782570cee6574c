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

// Package agent ties the pieces of a coverage run together for a host: the
// transformer that instruments units, the run collecting their counters and
// the writer persisting them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/instrument"
	"github.com/parca-dev/coverage-agent/pkg/report"
)

type metrics struct {
	lastSave prometheus.Gauge
	units    prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, run *coverage.Run) *metrics {
	return &metrics{
		lastSave: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "coverage_agent_last_save_timestamp_seconds",
			Help: "Timestamp of the last successful report save.",
		}),
		units: promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "coverage_agent_run_units",
			Help: "Number of units registered in the coverage run.",
		}, func() float64 { return float64(run.Len()) }),
	}
}

// Options configure an Agent.
type Options struct {
	Report       report.BinaryReport
	Encode       report.EncodeOptions
	SaveInterval time.Duration
	// MaxRetryDelay bounds the retries of one save, 0 keeps the writer's
	// default.
	MaxRetryDelay time.Duration
	// Append merges an existing report into the run on start.
	Append bool
}

// Agent owns a coverage run and saves it periodically.
type Agent struct {
	logger   log.Logger
	metrics  *metrics
	reporter *coverage.LogErrorReporter

	run         *coverage.Run
	transformer *instrument.Transformer
	writer      *report.Writer
	report      report.BinaryReport
	interval    time.Duration

	mtx           *sync.RWMutex
	lastSaveAt    time.Time
	lastSaveError error
}

// New creates an agent instrumenting with the settings of cfg.
func New(logger log.Logger, reg prometheus.Registerer, cfg *config.Config, opts Options) (*Agent, error) {
	if opts.SaveInterval <= 0 {
		return nil, fmt.Errorf("invalid save interval %s", opts.SaveInterval)
	}
	iopts, names, err := instrument.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	rep := coverage.NewLogErrorReporter(logger, reg, 0)
	run := coverage.NewRun(rep)
	if opts.Append {
		prev, err := opts.Report.Load(rep)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			level.Debug(logger).Log("msg", "no report to append to", "path", opts.Report.DataFile)
		case err != nil:
			return nil, fmt.Errorf("load previous report: %w", err)
		default:
			run.Merge(prev)
			level.Info(logger).Log("msg", "appending to previous report", "path", opts.Report.DataFile, "units", run.Len())
		}
	}

	w := report.NewWriter(logger, reg, opts.Report.DataFile, opts.Encode)
	if opts.MaxRetryDelay > 0 {
		w.MaxElapsedTime = opts.MaxRetryDelay
	}

	return &Agent{
		logger:      logger,
		metrics:     newMetrics(reg, run),
		reporter:    rep,
		run:         run,
		transformer: instrument.NewTransformer(logger, reg, run, nil, iopts, names),
		writer:      w,
		report:      opts.Report,
		interval:    opts.SaveInterval,
		mtx:         &sync.RWMutex{},
	}, nil
}

// Transformer returns the transformer hosts hand their units to.
func (a *Agent) Transformer() *instrument.Transformer { return a.transformer }

// CoverageRun returns the run collecting the counters.
func (a *Agent) CoverageRun() *coverage.Run { return a.run }

// Diagnostics returns the most recent non-fatal diagnostics.
func (a *Agent) Diagnostics() string { return a.reporter.Tail() }

// ApplyConfig updates the instrumentation settings.
func (a *Agent) ApplyConfig(cfg *config.Config) error {
	return a.transformer.ApplyConfig(cfg)
}

// Save writes the run to the report files.
func (a *Agent) Save(ctx context.Context) error {
	err := a.report.Save(ctx, a.writer, a.run)

	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.lastSaveError = err
	if err == nil {
		a.lastSaveAt = time.Now()
		a.metrics.lastSave.SetToCurrentTime()
	}
	return err
}

// LastSave returns when the report was last saved and the error of the
// last attempt.
func (a *Agent) LastSave() (time.Time, error) {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.lastSaveAt, a.lastSaveError
}

// Run saves the report every interval until ctx is done. It then stops
// the run, so no further unit is instrumented, and saves a last time.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case <-ticker.C:
		}

		if err := a.Save(ctx); err != nil {
			level.Warn(a.logger).Log("msg", "periodic report save failed", "err", err)
		}
	}
}

func (a *Agent) shutdown() error {
	a.run.Stop()
	if err := a.Save(context.Background()); err != nil {
		return fmt.Errorf("final report save: %w", err)
	}
	if n := a.reporter.TotalWritten(); n > 0 {
		level.Info(a.logger).Log("msg", "coverage diagnostics were reported", "bytes", n, "recent", a.reporter.Tail())
	}
	level.Info(a.logger).Log("msg", "coverage report saved", "path", a.report.DataFile, "units", a.run.Len())
	return nil
}
