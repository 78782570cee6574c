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

package report

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/parca-dev/coverage-agent/pkg/coverage"
)

// Summary counts the sites of a unit, or of a whole run, and how many of
// them were covered. A branch is covered once both outcomes were seen, a
// switch case once it was hit.
type Summary struct {
	Name string

	Lines           uint64
	CoveredLines    uint64
	Branches        int
	CoveredBranches int
	Cases           int
	CoveredCases    int
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Lines += o.Lines
	s.CoveredLines += o.CoveredLines
	s.Branches += o.Branches
	s.CoveredBranches += o.CoveredBranches
	s.Cases += o.Cases
	s.CoveredCases += o.CoveredCases
}

// SummarizeUnit summarizes a finished unit.
func SummarizeUnit(u *coverage.Unit) Summary {
	lines := u.Lines()
	s := Summary{
		Name:         u.Name(),
		Lines:        lines.Bitmap().GetCardinality(),
		CoveredLines: u.CoveredLines().GetCardinality(),
	}
	for _, l := range lines.Present() {
		j := l.Frozen()
		if j == nil {
			continue
		}
		for _, b := range j.Branches() {
			s.Branches++
			if b.Covered() {
				s.CoveredBranches++
			}
		}
		for _, sw := range j.Switches() {
			s.Cases += sw.KeyCount() + 1
			s.CoveredCases += sw.CoveredCases()
		}
	}
	return s
}

// Summarize finishes run and returns the summary of every unit in name order
// and the total.
func Summarize(run *coverage.Run) ([]Summary, Summary) {
	run.Finish()
	units := run.Units()
	out := make([]Summary, 0, len(units))
	total := Summary{}
	for _, u := range units {
		s := SummarizeUnit(u)
		out = append(out, s)
		total.Add(s)
	}
	return out, total
}

// CoveredLines returns the covered lines of the named unit, nil if run does
// not hold it.
func CoveredLines(run *coverage.Run, name string) *roaring.Bitmap {
	u := run.Unit(name)
	if u == nil {
		return nil
	}
	return u.CoveredLines()
}
