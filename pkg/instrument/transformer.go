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
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/model/relabel"
	"go.uber.org/atomic"

	"github.com/parca-dev/coverage-agent/pkg/bytecode"
	"github.com/parca-dev/coverage-agent/pkg/cache"
	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/hash"
	"github.com/parca-dev/coverage-agent/pkg/instrument/filters"
)

// UnitSource is a compiled unit handed over by the host loader.
type UnitSource interface {
	Name() string
	Bytes() []byte
	FormatVersion() *semver.Version
	Signature() bytecode.ClassInfo
	Methods() []bytecode.Method
}

// LoaderRegistry is notified of every loader that hands over units, so
// that sources can later be found through it.
type LoaderRegistry interface {
	RegisterLoader(id string)
}

// StaticSource is a UnitSource backed by already decoded values.
type StaticSource struct {
	Class   bytecode.ClassInfo
	Code    []byte
	Members []bytecode.Method
}

var _ UnitSource = StaticSource{}

func (s StaticSource) Name() string                   { return s.Class.Name }
func (s StaticSource) Bytes() []byte                  { return s.Code }
func (s StaticSource) FormatVersion() *semver.Version { return s.Class.Version }
func (s StaticSource) Signature() bytecode.ClassInfo  { return s.Class }
func (s StaticSource) Methods() []bytecode.Method     { return s.Members }

// NameFilter selects units by name. An exclude match wins; an empty include
// list accepts every unit.
type NameFilter struct {
	Exclude []relabel.Regexp
	Include []relabel.Regexp
}

// Accept reports whether the unit with the given dotted name is
// instrumented.
func (f NameFilter) Accept(name string) bool {
	for _, re := range f.Exclude {
		if re.MatchString(name) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, re := range f.Include {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Result describes what Transform did with a unit.
type Result struct {
	Decision Decision
	// Unit is the unit registered in the run, nil if nothing was
	// instrumented.
	Unit       *coverage.Unit
	Effects    []Effect
	SourceFile string
}

// Instrumented reports whether counters were inserted.
func (r *Result) Instrumented() bool { return r.Unit != nil }

type settings struct {
	opts  Options
	names NameFilter
}

type cacheKey struct {
	name        string
	fingerprint uint64
}

// instrumented is what a later load of the same unit gets back: the
// decision its counters were laid out for and the matching effects.
type instrumented struct {
	decision   Decision
	effects    []Effect
	sourceFile string
}

// Transformer instruments the units of a host loader into a Run.
type Transformer struct {
	logger  log.Logger
	metrics *metrics
	run     *coverage.Run
	loaders LoaderRegistry

	settings *atomic.Pointer[settings]
	effects  *cache.LRUCache[cacheKey, instrumented]
}

// NewTransformer returns a transformer registering units in run. loaders
// may be nil.
func NewTransformer(logger log.Logger, reg prometheus.Registerer, run *coverage.Run, loaders LoaderRegistry, opts Options, names NameFilter) *Transformer {
	return &Transformer{
		logger:   logger,
		metrics:  newMetrics(reg),
		run:      run,
		loaders:  loaders,
		settings: atomic.NewPointer(&settings{opts: opts, names: names}),
		effects:  cache.NewLRUCache[cacheKey, instrumented](reg, "effects", 4096),
	}
}

// OptionsFromConfig converts a loaded config.
func OptionsFromConfig(cfg *config.Config) (Options, NameFilter, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Options{}, NameFilter{}, err
	}
	tracking, err := TrackingModeByName(cfg.TrackingMode)
	if err != nil {
		return Options{}, NameFilter{}, err
	}
	opts := Options{
		Mode:                                mode,
		CondyEnabled:                        cfg.CondyEnabled,
		TestTracking:                        cfg.TestTracking,
		Tracking:                            tracking,
		IgnorePrivateConstructorOfUtilClass: cfg.IgnorePrivateConstructorOfUtilClass,
		CalculateSource:                     cfg.CalculateSource,
	}
	return opts, NameFilter{Exclude: cfg.Exclude, Include: cfg.Include}, nil
}

// ApplyConfig swaps the settings used for units transformed from now on.
// Units instrumented before keep their counters, and reloading one of them
// returns the decision and effects it was first instrumented with.
func (t *Transformer) ApplyConfig(cfg *config.Config) error {
	opts, names, err := OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	t.settings.Store(&settings{opts: opts, names: names})
	level.Info(t.logger).Log("msg", "instrumentation settings updated", "mode", opts.Mode, "condy", opts.CondyEnabled, "test_tracking", opts.TestTracking)
	return nil
}

// Options returns the current settings.
func (t *Transformer) Options() Options { return t.settings.Load().opts }

// RegisterLoader forwards a loader to the registry, if any.
func (t *Transformer) RegisterLoader(id string) {
	if t.loaders != nil && id != "" {
		t.loaders.RegisterLoader(id)
	}
}

// Transform instruments src. A unit that is excluded, rejected by a
// signature filter or handed over after the run stopped is returned
// uninstrumented without an error.
func (t *Transformer) Transform(src UnitSource) (*Result, error) {
	start := time.Now()
	defer func() { t.metrics.transformTime.Observe(time.Since(start).Seconds()) }()

	name := src.Name()
	if name == "" {
		return nil, errors.New("unit without name")
	}
	if t.run.Stopped() {
		t.metrics.units.WithLabelValues(resultStopped).Inc()
		return &Result{}, nil
	}

	s := t.settings.Load()
	if !s.names.Accept(name) {
		t.metrics.units.WithLabelValues(resultExcluded).Inc()
		return &Result{}, nil
	}

	class := src.Signature()
	class.Name = name
	if v := src.FormatVersion(); v != nil {
		class.Version = v
	}
	d := Select(s.opts, class)
	if !d.Instrumented() {
		t.metrics.units.WithLabelValues(d.Strategy.String()).Inc()
		level.Debug(t.logger).Log("msg", "skipping unit", "unit", name, "filter", d.SkippedBy)
		return &Result{Decision: d}, nil
	}

	res := &Result{Decision: d}
	if s.opts.CalculateSource {
		res.SourceFile = class.SourceFile
	}

	fp := hash.Bytes(src.Bytes())
	key := cacheKey{name: name, fingerprint: fp}
	if existing := t.run.Unit(name); existing != nil && existing.Fingerprint() == fp {
		if cached, ok := t.effects.Get(key); ok {
			t.metrics.units.WithLabelValues(resultCached).Inc()
			return &Result{
				Decision:   cached.decision,
				Unit:       existing,
				Effects:    cached.effects,
				SourceFile: cached.sourceFile,
			}, nil
		}
	}

	unit := coverage.NewUnit(name, fp, t.run.Reporter())
	methods := src.Methods()
	ctor := -1
	if d.FilterPrivateConstructor {
		ctor = filters.UtilClassConstructor(class, methods)
	}
	for i, m := range methods {
		mi := newMethodInstrumenter(nil, unit, d, m, t.metrics)
		var v bytecode.MethodVisitor = mi
		if filters.IsCoroutinesApplicable(class, m.Name, m.Desc) {
			v = filters.NewCoroutines(v, mi)
		}
		if i == ctor {
			v = filters.NewPrivateConstructor(v, mi)
		}
		m.Accept(v)
		res.Effects = append(res.Effects, mi.Effects()...)
	}
	unit.Finish()

	registered, loaded := t.run.Register(unit)
	if loaded && registered.Fingerprint() != fp {
		// The counters of the registered unit do not fit this code.
		t.metrics.fingerprintDups.Inc()
		t.run.Reporter().Report(coverage.OpRegister, &coverage.FingerprintMismatchError{
			Name:     name,
			Existing: registered.Fingerprint(),
			Other:    fp,
		})
		return &Result{Decision: d}, nil
	}
	if loaded && !sameSites(registered.Lines(), unit.Lines()) {
		// Same code, but instrumented under other settings and no longer
		// memoized: these effects would address counters that do not exist.
		t.metrics.units.WithLabelValues(resultStale).Inc()
		level.Debug(t.logger).Log("msg", "unit counters laid out under other settings", "unit", name, "strategy", d.Strategy)
		return &Result{Decision: d}, nil
	}
	t.effects.Add(key, instrumented{decision: d, effects: res.Effects, sourceFile: res.SourceFile})
	res.Unit = registered

	t.metrics.units.WithLabelValues(d.Strategy.String()).Inc()
	return res, nil
}

// sameSites reports whether a and b have counters for the same lines,
// branches and switches.
func sameSites(a, b coverage.Lines) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if (a[n] == nil) != (b[n] == nil) {
			return false
		}
		if a[n] == nil {
			continue
		}
		fa, fb := a[n].Frozen(), b[n].Frozen()
		if fa.BranchCount() != fb.BranchCount() || fa.SwitchCount() != fb.SwitchCount() {
			return false
		}
	}
	return true
}
