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
	"errors"
	"fmt"
)

var (
	// ErrFrozen is reported when a branch or switch is added after Freeze.
	ErrFrozen = errors.New("jumps are frozen")
	// ErrNotFrozen is reported when counters are merged into a line that is
	// still being instrumented.
	ErrNotFrozen = errors.New("jumps are not frozen")
	// ErrCounterOverflow is reported when a merge clamps a counter.
	ErrCounterOverflow = errors.New("counter overflow")
	// ErrCorrupt is returned when persisted data cannot be decoded.
	ErrCorrupt = errors.New("corrupt coverage data")
)

// Operation names passed to ErrorReporter.Report.
const (
	OpRemoveBranch = "remove branch"
	OpRemoveSwitch = "remove switch"
	OpAddBranch    = "add branch"
	OpAddSwitch    = "add switch"
	OpAddLine      = "add line"
	OpMerge        = "merge"
	OpRegister     = "register"
)

// IndexError describes an id outside of the current range of a collection.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0:%d]", e.Index, e.Len)
}

// KeyMismatchError is reported when two switches with the same id but with
// different case keys are merged.
type KeyMismatchError struct {
	ID        int
	Keys      []int32
	OtherKeys []int32
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("switch %d: case keys differ: %v vs %v", e.ID, e.Keys, e.OtherKeys)
}

// FingerprintMismatchError is reported when a unit is registered under a
// known name but with different content. The first registered unit stays.
type FingerprintMismatchError struct {
	Name     string
	Existing uint64
	Other    uint64
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("unit %s: fingerprint %016x differs from registered %016x", e.Name, e.Other, e.Existing)
}

// ErrorReporter receives non-fatal diagnostics. Operations that report an
// error through it continue with a well-defined fallback.
type ErrorReporter interface {
	Report(op string, err error)
}

type nopReporter struct{}

func (nopReporter) Report(string, error) {}

// NopReporter returns an ErrorReporter that drops everything.
func NopReporter() ErrorReporter { return nopReporter{} }

func orNop(r ErrorReporter) ErrorReporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}
