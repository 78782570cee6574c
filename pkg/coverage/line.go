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

// Line holds the counters of one source line of a compiled unit.
type Line struct {
	number int
	Hits   Counter

	jumps *JumpsBuilder
}

func newLine(number int, r ErrorReporter) *Line {
	return &Line{number: number, jumps: NewJumpsBuilder(r)}
}

// NewFrozenLine returns a line whose sites are already fixed. Decoders use it.
func NewFrozenLine(number int, hits uint32, j *Jumps) *Line {
	if j == nil {
		j = EmptyJumps()
	}
	l := &Line{number: number, jumps: &JumpsBuilder{reporter: nopReporter{}, frozen: j}}
	l.Hits.Store(hits)
	return l
}

// Number returns the 1-based line number.
func (l *Line) Number() int { return l.number }

// Jumps returns the builder of the line's branch and switch sites.
func (l *Line) Jumps() *JumpsBuilder { return l.jumps }

// Frozen returns the fixed sites of the line, or nil before freezing.
func (l *Line) Frozen() *Jumps { return l.jumps.Frozen() }

// IsFrozen reports whether the line's sites are fixed.
func (l *Line) IsFrozen() bool { return l.jumps.Frozen() != nil }

// Merge adds the counters of o into l. Both lines must be frozen; merging
// into a line that is still being built is reported and skipped.
func (l *Line) Merge(o *Line, r ErrorReporter) {
	r = orNop(r)
	j := l.jumps.Frozen()
	if j == nil {
		r.Report(OpMerge, ErrNotFrozen)
		return
	}
	if l.Hits.Add(o.Hits.Load()) {
		r.Report(OpMerge, ErrCounterOverflow)
	}
	j.Merge(o.jumps.Frozen(), r)
}

// Clone returns a frozen deep copy of l. Sites of a line that is not frozen
// yet are not copied.
func (l *Line) Clone() *Line {
	var j *Jumps
	if f := l.jumps.Frozen(); f != nil {
		j = f.Clone()
	}
	return NewFrozenLine(l.number, l.Hits.Load(), j)
}
