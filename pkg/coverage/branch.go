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

import "slices"

// Branch holds the outcome counters of a two-way branch site.
type Branch struct {
	Taken    Counter
	NotTaken Counter
}

// Covered reports whether both outcomes were observed.
func (b *Branch) Covered() bool {
	return b.Taken.Load() > 0 && b.NotTaken.Load() > 0
}

func (b *Branch) merge(o *Branch) (overflow bool) {
	overflow = b.Taken.Add(o.Taken.Load())
	if b.NotTaken.Add(o.NotTaken.Load()) {
		overflow = true
	}
	return overflow
}

func (b *Branch) clone() *Branch {
	c := &Branch{}
	c.Taken.Store(b.Taken.Load())
	c.NotTaken.Store(b.NotTaken.Load())
	return c
}

// Switch holds the counters of a multiway dispatch site: one per case key
// and one for the default case. The keys are fixed at creation and define
// the identity of the site.
type Switch struct {
	keys    []int32
	hits    []Counter
	Default Counter
}

// NewSwitch returns a switch with zeroed counters for the given keys.
func NewSwitch(keys []int32) *Switch {
	return &Switch{
		keys: slices.Clone(keys),
		hits: make([]Counter, len(keys)),
	}
}

// Keys returns the case keys in declaration order.
func (s *Switch) Keys() []int32 {
	return s.keys
}

// KeyCount returns the number of case keys.
func (s *Switch) KeyCount() int {
	return len(s.keys)
}

// Hit returns the counter of the i-th case key.
func (s *Switch) Hit(i int) *Counter {
	return &s.hits[i]
}

// CoveredCases returns the number of cases, default included, that were hit.
func (s *Switch) CoveredCases() int {
	n := 0
	for i := range s.hits {
		if s.hits[i].Load() > 0 {
			n++
		}
	}
	if s.Default.Load() > 0 {
		n++
	}
	return n
}

// merge adds o's counters into s. A switch without keys is a placeholder
// and takes over the keys of the other side. Differing non-empty key sets
// are reported; counters are then merged by position and the longer key
// set (s's on a tie) is kept.
func (s *Switch) merge(id int, o *Switch, r ErrorReporter) (overflow bool) {
	switch {
	case slices.Equal(s.keys, o.keys):
	case len(s.keys) == 0:
		s.grow(o.keys)
	case len(o.keys) == 0:
	default:
		r.Report(OpMerge, &KeyMismatchError{
			ID:        id,
			Keys:      slices.Clone(s.keys),
			OtherKeys: slices.Clone(o.keys),
		})
		if len(o.keys) > len(s.keys) {
			s.grow(o.keys)
		}
	}

	for i := range o.hits {
		if s.hits[i].Add(o.hits[i].Load()) {
			overflow = true
		}
	}
	if s.Default.Add(o.Default.Load()) {
		overflow = true
	}
	return overflow
}

// grow replaces the keys, keeping existing counters by position.
func (s *Switch) grow(keys []int32) {
	hits := make([]Counter, len(keys))
	for i := range s.hits {
		hits[i].Store(s.hits[i].Load())
	}
	s.keys = slices.Clone(keys)
	s.hits = hits
}

func (s *Switch) clone() *Switch {
	c := NewSwitch(s.keys)
	for i := range s.hits {
		c.hits[i].Store(s.hits[i].Load())
	}
	c.Default.Store(s.Default.Load())
	return c
}
