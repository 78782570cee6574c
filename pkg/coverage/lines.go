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
	"github.com/RoaringBitmap/roaring"
)

// NoLines is the maximum line number of a unit without any line.
const NoLines = -1

var emptyLines = Lines{}

// LineIndex is the sparse line table of a unit while it is instrumented.
type LineIndex struct {
	reporter ErrorReporter

	lines   map[int]*Line
	maxLine int
}

// NewLineIndex returns an empty index reporting diagnostics to r.
func NewLineIndex(r ErrorReporter) *LineIndex {
	return &LineIndex{
		reporter: orNop(r),
		lines:    map[int]*Line{},
		maxLine:  NoLines,
	}
}

// Add returns the line with the given number, creating it if needed.
// Line numbers start at 1; anything else is reported and yields nil.
func (x *LineIndex) Add(number int) *Line {
	if number < 1 {
		x.reporter.Report(OpAddLine, &IndexError{Index: number, Len: x.maxLine + 1})
		return nil
	}
	if l, ok := x.lines[number]; ok {
		return l
	}
	l := newLine(number, x.reporter)
	x.lines[number] = l
	if number > x.maxLine {
		x.maxLine = number
	}
	return l
}

// Get returns the line with the given number or nil.
func (x *LineIndex) Get(number int) *Line {
	if x == nil {
		return nil
	}
	return x.lines[number]
}

// Remove drops a line, e.g. one that only held generated code.
func (x *LineIndex) Remove(number int) {
	if _, ok := x.lines[number]; !ok {
		return
	}
	delete(x.lines, number)
	if number != x.maxLine {
		return
	}
	x.maxLine = NoLines
	for n := range x.lines {
		if n > x.maxLine {
			x.maxLine = n
		}
	}
}

// MaxLine returns the highest line number in the index, or NoLines.
func (x *LineIndex) MaxLine() int { return x.maxLine }

// Len returns the number of lines in the index.
func (x *LineIndex) Len() int { return len(x.lines) }

// Lines is the dense line table of a unit, addressed by line number.
// Index 0 is never used and lines without counters are nil.
type Lines []*Line

// BuildLines converts a sparse index into its dense form. maxLine is the
// highest line number seen, or NoLines, in which case a shared empty table
// is returned whatever sparse holds. Every present line is frozen here.
func BuildLines(maxLine int, sparse *LineIndex) Lines {
	if maxLine == NoLines {
		return emptyLines
	}
	lines := make(Lines, maxLine+1)
	for n := 1; n <= maxLine; n++ {
		l := sparse.Get(n)
		if l != nil {
			l.jumps.Freeze()
		}
		lines[n] = l
	}
	return lines
}

// Line returns the line with the given number or nil.
func (ls Lines) Line(number int) *Line {
	if number < 1 || number >= len(ls) {
		return nil
	}
	return ls[number]
}

// MaxLine returns the highest addressable line number or NoLines.
func (ls Lines) MaxLine() int {
	if len(ls) == 0 {
		return NoLines
	}
	return len(ls) - 1
}

// Present returns the lines that have counters, in line order.
func (ls Lines) Present() []*Line {
	present := make([]*Line, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			present = append(present, l)
		}
	}
	return present
}

// Bitmap returns the numbers of the lines that have counters.
func (ls Lines) Bitmap() *roaring.Bitmap {
	bm := roaring.New()
	for n, l := range ls {
		if l != nil {
			bm.Add(uint32(n))
		}
	}
	return bm
}

// CoveredBitmap returns the numbers of the lines that were hit at least once.
func (ls Lines) CoveredBitmap() *roaring.Bitmap {
	bm := roaring.New()
	for n, l := range ls {
		if l != nil && l.Hits.Load() > 0 {
			bm.Add(uint32(n))
		}
	}
	return bm
}
