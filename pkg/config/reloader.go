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

package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ComponentReloader is notified with every successfully loaded config.
type ComponentReloader struct {
	Name     string
	Reloader func(*Config) error
}

type reloaderMetrics struct {
	reloads      *prometheus.CounterVec
	lastReloadTS prometheus.Gauge
}

func newReloaderMetrics(reg prometheus.Registerer) *reloaderMetrics {
	return &reloaderMetrics{
		reloads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_agent_config_reloads_total",
			Help: "Total number of config file reloads by result.",
		}, []string{"result"}),
		lastReloadTS: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "coverage_agent_config_last_reload_success_timestamp_seconds",
			Help: "Timestamp of the last successful config reload.",
		}),
	}
}

// ConfigReloader watches a config file and hands every valid new version
// to its components.
type ConfigReloader struct {
	logger    log.Logger
	metrics   *reloaderMetrics
	filename  string
	watcher   *fsnotify.Watcher
	reloaders []ComponentReloader
}

// NewConfigReloader starts watching filename. Symlinks are resolved when
// the watch is added, so a replaced link target is picked up once the old
// target is removed.
func NewConfigReloader(logger log.Logger, reg prometheus.Registerer, filename string, reloaders []ComponentReloader) (*ConfigReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filename); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filename, err)
	}
	return &ConfigReloader{
		logger:    logger,
		metrics:   newReloaderMetrics(reg),
		filename:  filename,
		watcher:   watcher,
		reloaders: reloaders,
	}, nil
}

// Run processes file events until ctx is done.
func (r *ConfigReloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// The watch is gone with the file; follow the path again.
				if err := r.watcher.Add(r.filename); err != nil {
					level.Warn(r.logger).Log("msg", "failed to re-watch config file", "file", r.filename, "err", err)
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			level.Warn(r.logger).Log("msg", "config watcher error", "err", err)
		}
	}
}

func (r *ConfigReloader) reload() {
	cfg, err := LoadFile(r.filename)
	if err != nil {
		r.metrics.reloads.WithLabelValues("error").Inc()
		level.Error(r.logger).Log("msg", "failed to load config file", "file", r.filename, "err", err)
		return
	}

	failed := false
	for _, c := range r.reloaders {
		if err := c.Reloader(cfg); err != nil {
			failed = true
			level.Error(r.logger).Log("msg", "failed to reload component", "component", c.Name, "err", err)
		}
	}
	if failed {
		r.metrics.reloads.WithLabelValues("error").Inc()
		return
	}
	r.metrics.reloads.WithLabelValues("success").Inc()
	r.metrics.lastReloadTS.SetToCurrentTime()
	level.Info(r.logger).Log("msg", "config file reloaded", "file", r.filename)
}
