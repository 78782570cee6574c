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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	runtimepprof "runtime/pprof"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/agent"
	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/report"
)

func runAgent(ctx context.Context, logger log.Logger, reg *prometheus.Registry, f flags.Flags, cfg *config.Config) error {
	intro := figure.NewColorFigure("Coverage Agent ", "roman", "yellow", true)
	intro.Print()

	compression, err := report.ParseCompression(cfg.Report.Compression)
	if err != nil {
		return err
	}
	br := report.BinaryReport{DataFile: f.Agent.ReportPath, SourceMapFile: f.Agent.SourceMapPath()}
	if br.SourceMapFile == "" && cfg.Report.SourceMap {
		br.SourceMapFile = f.Agent.ReportPath + flags.SourceMapSuffix
	}

	a, err := agent.New(logger, reg, cfg, agent.Options{
		Report:        br,
		Encode:        report.EncodeOptions{Producer: f.Agent.Producer, Compression: compression},
		SaveInterval:  f.Agent.SaveInterval,
		MaxRetryDelay: f.Agent.MaxRetryDelay,
		Append:        f.Agent.Append,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	level.Info(logger).Log("msg", "coverage agent started", "report", br.DataFile, "mode", cfg.Mode, "units", a.CoverageRun().Len())

	var g okrun.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Debug(logger).Log("msg", "starting: report saver")
			defer level.Debug(logger).Log("msg", "stopped: report saver")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "report_saver"), func(ctx context.Context) {
				err = a.Run(ctx)
			})
			if err != nil {
				level.Error(logger).Log("msg", "report saver failed", "err", err)
			}
			return err
		}, func(error) {
			cancel()
		})
	}

	if f.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:         f.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: time.Minute,
		}

		g.Add(func() error {
			level.Debug(logger).Log("msg", "starting: http server", "address", f.Metrics.Address)
			defer level.Debug(logger).Log("msg", "stopped: http server")

			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			srv.Close()
		})
	}

	if f.ConfigPath != "" {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		reloaders := []config.ComponentReloader{
			{
				Name:     "transformer",
				Reloader: a.ApplyConfig,
			},
		}

		cfgReloader, err := config.NewConfigReloader(logger, reg, f.ConfigPath, reloaders)
		if err != nil {
			level.Error(logger).Log("msg", "failed to instantiate config file reloader", "err", err)
			return err
		}

		g.Add(
			func() error {
				level.Debug(logger).Log("msg", "starting: config file reloader")
				defer level.Debug(logger).Log("msg", "stopped: config file reloader")

				var err error
				runtimepprof.Do(ctx, runtimepprof.Labels("component", "config_file_reloader"), func(ctx context.Context) {
					err = cfgReloader.Run(ctx)
				})
				return err
			},
			func(error) {
				cancel()
			},
		)
	}

	g.Add(okrun.SignalHandler(ctx, os.Interrupt, os.Kill))
	err = g.Run()
	var sigErr okrun.SignalError
	if errors.As(err, &sigErr) {
		level.Info(logger).Log("msg", "shutting down", "signal", sigErr.Signal)
		return nil
	}
	return err
}
