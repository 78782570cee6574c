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
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/parca-dev/coverage-agent/pkg/bytecode"
)

// MinCondyVersion is the first unit format version that supports dynamic
// constants.
var MinCondyVersion = semver.MustParse("55.0.0")

// Options are the process-wide instrumentation settings.
type Options struct {
	Mode         Mode
	CondyEnabled bool
	TestTracking bool
	// Tracking is used for tracing when TestTracking is set; nil disables
	// test tracking.
	Tracking TrackingMode

	IgnorePrivateConstructorOfUtilClass bool
	CalculateSource                     bool
}

// Decision is the outcome of Select for one unit.
type Decision struct {
	Strategy Strategy
	Access   Access
	// Tracking is set for StrategyTracingTracked.
	Tracking TrackingMode
	// FilterPrivateConstructor asks for the unreachable constructor of a
	// utility class to be dropped.
	FilterPrivateConstructor bool
	// SkippedBy names the signature filter that rejected the unit.
	SkippedBy string
}

// Instrumented reports whether the unit gets counters.
func (d Decision) Instrumented() bool { return d.Strategy != StrategySkip }

type rule struct {
	matches  func(Options, bytecode.ClassInfo) bool
	strategy Strategy
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		matches:  func(o Options, c bytecode.ClassInfo) bool { return o.Mode == ModeSampling && condy(o, c) },
		strategy: StrategySamplingCondy,
	},
	{
		matches:  func(o Options, _ bytecode.ClassInfo) bool { return o.Mode == ModeSampling },
		strategy: StrategySamplingLegacy,
	},
	{
		matches:  func(o Options, _ bytecode.ClassInfo) bool { return o.TestTracking && o.Tracking != nil },
		strategy: StrategyTracingTracked,
	},
	{
		matches:  condy,
		strategy: StrategyTracingCondy,
	},
	{
		matches:  func(Options, bytecode.ClassInfo) bool { return true },
		strategy: StrategyTracingLegacy,
	},
}

func condy(o Options, c bytecode.ClassInfo) bool {
	return o.CondyEnabled && c.Version != nil && !c.Version.LessThan(MinCondyVersion)
}

// Select decides how class is instrumented. It has no side effects and is
// safe for concurrent use.
func Select(opts Options, class bytecode.ClassInfo) Decision {
	for _, f := range SignatureFilters() {
		if f.ShouldFilter(class) {
			return Decision{Strategy: StrategySkip, SkippedBy: f.Name()}
		}
	}

	var d Decision
	for _, r := range rules {
		if r.matches(opts, class) {
			d.Strategy = r.strategy
			break
		}
	}
	switch d.Strategy {
	case StrategySamplingCondy, StrategyTracingCondy:
		d.Access = AccessCondy
	case StrategyTracingTracked:
		d.Tracking = opts.Tracking
		d.Access = opts.Tracking.Access(class.Name)
	default:
		d.Access = AccessFieldArray
	}
	d.FilterPrivateConstructor = opts.IgnorePrivateConstructorOfUtilClass
	return d
}

// SignatureFilter rejects whole units by their header.
type SignatureFilter interface {
	Name() string
	ShouldFilter(class bytecode.ClassInfo) bool
}

type signatureFilter struct {
	name   string
	filter func(bytecode.ClassInfo) bool
}

func (f signatureFilter) Name() string                            { return f.name }
func (f signatureFilter) ShouldFilter(c bytecode.ClassInfo) bool { return f.filter(c) }

var (
	signatureFiltersOnce sync.Once
	signatureFilters     []SignatureFilter
)

// SignatureFilters returns the process-wide list of signature filters.
func SignatureFilters() []SignatureFilter {
	signatureFiltersOnce.Do(func() {
		signatureFilters = []SignatureFilter{
			signatureFilter{name: "kotlin-when-mappings", filter: isWhenMappings},
			signatureFilter{name: "kotlin-callable-reference", filter: isCallableReference},
			signatureFilter{name: "annotation", filter: func(c bytecode.ClassInfo) bool {
				return c.Access.Has(bytecode.AccAnnotation)
			}},
		}
	})
	return signatureFilters
}

func isWhenMappings(c bytecode.ClassInfo) bool {
	return c.Access.Has(bytecode.AccSynthetic) && strings.HasSuffix(c.Name, "$WhenMappings")
}

const kotlinInternal = "kotlin/jvm/internal/"

func isCallableReference(c bytecode.ClassInfo) bool {
	if !strings.HasPrefix(c.SuperName, kotlinInternal) {
		return false
	}
	base := strings.TrimPrefix(c.SuperName, kotlinInternal)
	return strings.HasPrefix(base, "FunctionReference") ||
		strings.HasPrefix(base, "PropertyReference") ||
		strings.HasPrefix(base, "MutablePropertyReference")
}
