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
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Unit is the coverage record of one compiled unit. It is built while the
// unit is instrumented and finished exactly once, after which its line
// table is dense and every branch and switch set is frozen.
type Unit struct {
	name        string
	fingerprint uint64
	reporter    ErrorReporter

	finish sync.Once

	mtx      sync.RWMutex
	index    *LineIndex
	lines    Lines
	fileMaps []FileMap
}

// NewUnit returns a unit in its build phase.
func NewUnit(name string, fingerprint uint64, r ErrorReporter) *Unit {
	r = orNop(r)
	return &Unit{
		name:        name,
		fingerprint: fingerprint,
		reporter:    r,
		index:       NewLineIndex(r),
	}
}

// NewFinishedUnit returns a unit holding an already dense line table.
// Every line in lines must be frozen.
func NewFinishedUnit(name string, fingerprint uint64, lines Lines, r ErrorReporter) *Unit {
	if lines == nil {
		lines = emptyLines
	}
	u := &Unit{
		name:        name,
		fingerprint: fingerprint,
		reporter:    orNop(r),
		lines:       lines,
	}
	u.finish.Do(func() {})
	return u
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Fingerprint returns the content hash of the unit's compiled form.
func (u *Unit) Fingerprint() uint64 { return u.fingerprint }

// Index returns the sparse line table, or nil once the unit is finished.
func (u *Unit) Index() *LineIndex {
	u.mtx.RLock()
	defer u.mtx.RUnlock()
	return u.index
}

// Finish converts the sparse line table into the dense one and freezes all
// sites. It must only be called once nothing adds sites to the unit any
// more; calls after the first return the same table.
func (u *Unit) Finish() Lines {
	u.finish.Do(func() {
		u.mtx.Lock()
		defer u.mtx.Unlock()
		u.lines = BuildLines(u.index.MaxLine(), u.index)
		u.index = nil
	})
	return u.Lines()
}

// Finished reports whether Finish was called.
func (u *Unit) Finished() bool {
	return u.Lines() != nil
}

// Lines returns the dense line table, or nil before Finish.
func (u *Unit) Lines() Lines {
	u.mtx.RLock()
	defer u.mtx.RUnlock()
	return u.lines
}

// FileMaps returns the generated-line maps of the unit.
func (u *Unit) FileMaps() []FileMap {
	u.mtx.RLock()
	defer u.mtx.RUnlock()
	return u.fileMaps
}

// SetFileMaps replaces the generated-line maps of the unit.
func (u *Unit) SetFileMaps(maps []FileMap) {
	u.mtx.Lock()
	defer u.mtx.Unlock()
	u.fileMaps = slices.Clone(maps)
}

// CoveredLines returns the numbers of the lines that were hit.
func (u *Unit) CoveredLines() *roaring.Bitmap {
	return u.Lines().CoveredBitmap()
}

// Merge adds the counters of o into u, growing u's line table to hold every
// line of o. Lines missing on u's side are copied. Both units must be
// finished. Non-empty file maps of o replace u's.
func (u *Unit) Merge(o *Unit, r ErrorReporter) {
	if r == nil {
		r = u.reporter
	}
	other := o.Lines()
	maps := o.FileMaps()

	u.mtx.Lock()
	defer u.mtx.Unlock()
	if u.lines == nil || other == nil {
		r.Report(OpMerge, ErrNotFrozen)
		return
	}

	if len(u.lines) < len(other) {
		grown := make(Lines, len(other))
		copy(grown, u.lines)
		u.lines = grown
	}
	for n, ol := range other {
		if ol == nil {
			continue
		}
		if u.lines[n] == nil {
			u.lines[n] = ol.Clone()
			continue
		}
		u.lines[n].Merge(ol, r)
	}

	if len(maps) > 0 {
		u.fileMaps = slices.Clone(maps)
	}
}
