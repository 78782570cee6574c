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
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// Run is the process-wide coverage of one execution: every instrumented
// unit, keyed by name. Units are registered concurrently by the
// instrumentation hooks of the host.
type Run struct {
	reporter ErrorReporter

	units   *xsync.MapOf[string, *Unit]
	stopped *atomic.Bool
}

// NewRun returns an empty run reporting diagnostics to r.
func NewRun(r ErrorReporter) *Run {
	return &Run{
		reporter: orNop(r),
		units:    xsync.NewMapOf[string, *Unit](),
		stopped:  atomic.NewBool(false),
	}
}

// Reporter returns the error reporter of the run.
func (r *Run) Reporter() ErrorReporter { return r.reporter }

// Register stores u unless a unit with the same name is known already. It
// returns the unit held by the run and whether it was already present.
func (r *Run) Register(u *Unit) (*Unit, bool) {
	return r.units.LoadOrStore(u.Name(), u)
}

// Unit returns the unit with the given name or nil.
func (r *Run) Unit(name string) *Unit {
	u, _ := r.units.Load(name)
	return u
}

// Len returns the number of units.
func (r *Run) Len() int { return r.units.Size() }

// Units returns all units ordered by name.
func (r *Run) Units() []*Unit {
	units := make([]*Unit, 0, r.units.Size())
	r.units.Range(func(_ string, u *Unit) bool {
		units = append(units, u)
		return true
	})
	slices.SortFunc(units, func(a, b *Unit) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return units
}

// Finish finishes every unit. It is the snapshot barrier used before the
// run is persisted.
func (r *Run) Finish() {
	r.units.Range(func(_ string, u *Unit) bool {
		u.Finish()
		return true
	})
}

// Merge adds every unit of o into r. Units only known to o are adopted, so
// o must not be used afterwards. Units whose fingerprints differ are still
// merged line by line after the mismatch is reported. Merge needs exclusive
// access to both runs.
func (r *Run) Merge(o *Run) {
	for _, ou := range o.Units() {
		u, loaded := r.units.LoadOrStore(ou.Name(), ou)
		if !loaded {
			continue
		}
		if u.Fingerprint() != ou.Fingerprint() {
			r.reporter.Report(OpMerge, &FingerprintMismatchError{Name: u.Name(), Existing: u.Fingerprint(), Other: ou.Fingerprint()})
		}
		u.Merge(ou, r.reporter)
	}
}

// Stop marks the run as stopped; no further unit is instrumented.
func (r *Run) Stop() { r.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (r *Run) Stopped() bool { return r.stopped.Load() }
