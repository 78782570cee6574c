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
	"fmt"

	"github.com/parca-dev/coverage-agent/pkg/config"
)

// Mode selects what is counted.
type Mode uint8

const (
	// ModeSampling counts line hits only.
	ModeSampling Mode = iota
	// ModeTracing counts lines, branch outcomes and switch cases.
	ModeTracing
)

// ParseMode parses the config representation of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case config.ModeSampling, "":
		return ModeSampling, nil
	case config.ModeTracing:
		return ModeTracing, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeTracing {
		return config.ModeTracing
	}
	return config.ModeSampling
}

// UnmarshalText implements encoding.TextUnmarshaler for flag parsing.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Strategy is the way a unit gets instrumented.
type Strategy uint8

const (
	StrategySkip Strategy = iota
	StrategySamplingLegacy
	StrategySamplingCondy
	StrategyTracingLegacy
	StrategyTracingCondy
	StrategyTracingTracked
)

var strategyNames = [...]string{
	StrategySkip:           "skip",
	StrategySamplingLegacy: "sampling",
	StrategySamplingCondy:  "sampling-condy",
	StrategyTracingLegacy:  "tracing",
	StrategyTracingCondy:   "tracing-condy",
	StrategyTracingTracked: "tracing-tracked",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// Tracing reports whether the strategy counts branches and switches.
func (s Strategy) Tracing() bool {
	return s >= StrategyTracingLegacy
}

// Access is how instrumented code reaches its counters.
type Access uint8

const (
	AccessNone Access = iota
	// AccessFieldArray loads the counter array from a synthetic static field.
	AccessFieldArray
	// AccessCondy resolves the counter array through a dynamic constant.
	AccessCondy
	// AccessTrackingArray additionally records the running test per line.
	AccessTrackingArray
	// AccessClassData goes through the shared per-unit data object.
	AccessClassData
)

func (a Access) String() string {
	switch a {
	case AccessFieldArray:
		return "field-array"
	case AccessCondy:
		return "condy"
	case AccessTrackingArray:
		return "tracking-array"
	case AccessClassData:
		return "class-data"
	default:
		return "none"
	}
}

// TrackingMode builds the per-test tracking variant of tracing.
type TrackingMode interface {
	Name() string
	// Access returns the counter access used for the given unit.
	Access(unit string) Access
}

type arrayTracking struct{}

func (arrayTracking) Name() string         { return config.TrackingArray }
func (arrayTracking) Access(string) Access { return AccessTrackingArray }

type classDataTracking struct{}

func (classDataTracking) Name() string         { return config.TrackingClassData }
func (classDataTracking) Access(string) Access { return AccessClassData }

// TrackingModeByName returns the tracking mode with the given config name,
// or nil for an empty name.
func TrackingModeByName(name string) (TrackingMode, error) {
	switch name {
	case "":
		return nil, nil
	case config.TrackingArray:
		return arrayTracking{}, nil
	case config.TrackingClassData:
		return classDataTracking{}, nil
	default:
		return nil, fmt.Errorf("unknown tracking mode %q", name)
	}
}
