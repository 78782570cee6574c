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

// JumpsBuilder collects the branch and switch sites of one line while the
// line is being instrumented. Ids are dense and 0-based; adding an id past
// the end fills the gap with empty placeholder records.
//
// A JumpsBuilder is used by a single instrumentation pass and is not safe
// for concurrent use. Freeze converts it to an immutable Jumps; afterwards
// every add or remove is rejected.
type JumpsBuilder struct {
	reporter ErrorReporter

	branches []*Branch
	switches []*Switch

	frozen *Jumps
}

// NewJumpsBuilder returns an empty builder reporting diagnostics to r.
func NewJumpsBuilder(r ErrorReporter) *JumpsBuilder {
	return &JumpsBuilder{reporter: orNop(r)}
}

// AddBranch returns the branch with the given id, growing the collection
// if needed. It returns nil if the builder is frozen or id is negative.
func (b *JumpsBuilder) AddBranch(id int) *Branch {
	if b.frozen != nil {
		b.reporter.Report(OpAddBranch, ErrFrozen)
		return nil
	}
	if id < 0 {
		b.reporter.Report(OpAddBranch, &IndexError{Index: id, Len: len(b.branches)})
		return nil
	}
	for len(b.branches) <= id {
		b.branches = append(b.branches, &Branch{})
	}
	return b.branches[id]
}

// AddSwitch returns the switch with the given id, growing the collection
// with key-less placeholders if needed. keys are only used when the id is
// created; an existing switch is returned unchanged.
func (b *JumpsBuilder) AddSwitch(id int, keys []int32) *Switch {
	if b.frozen != nil {
		b.reporter.Report(OpAddSwitch, ErrFrozen)
		return nil
	}
	if id < 0 {
		b.reporter.Report(OpAddSwitch, &IndexError{Index: id, Len: len(b.switches)})
		return nil
	}
	for len(b.switches) < id {
		b.switches = append(b.switches, NewSwitch(nil))
	}
	if len(b.switches) == id {
		b.switches = append(b.switches, NewSwitch(keys))
	}
	return b.switches[id]
}

// RemoveBranch drops the branch with the given id, shifting later ids down.
// Out of range ids are reported and ignored.
func (b *JumpsBuilder) RemoveBranch(id int) {
	if b.frozen != nil {
		b.reporter.Report(OpRemoveBranch, ErrFrozen)
		return
	}
	if id < 0 || id >= len(b.branches) {
		b.reporter.Report(OpRemoveBranch, &IndexError{Index: id, Len: len(b.branches)})
		return
	}
	b.branches = append(b.branches[:id], b.branches[id+1:]...)
}

// RemoveSwitch drops the switch with the given id, shifting later ids down.
// Out of range ids are reported and ignored.
func (b *JumpsBuilder) RemoveSwitch(id int) {
	if b.frozen != nil {
		b.reporter.Report(OpRemoveSwitch, ErrFrozen)
		return
	}
	if id < 0 || id >= len(b.switches) {
		b.reporter.Report(OpRemoveSwitch, &IndexError{Index: id, Len: len(b.switches)})
		return
	}
	b.switches = append(b.switches[:id], b.switches[id+1:]...)
}

// BranchCount returns the number of branch ids, frozen or not.
func (b *JumpsBuilder) BranchCount() int {
	if b.frozen != nil {
		return b.frozen.BranchCount()
	}
	return len(b.branches)
}

// SwitchCount returns the number of switch ids, frozen or not.
func (b *JumpsBuilder) SwitchCount() int {
	if b.frozen != nil {
		return b.frozen.SwitchCount()
	}
	return len(b.switches)
}

// Branch returns the branch with the given id or nil.
func (b *JumpsBuilder) Branch(id int) *Branch {
	if b.frozen != nil {
		return b.frozen.Branch(id)
	}
	if id < 0 || id >= len(b.branches) {
		return nil
	}
	return b.branches[id]
}

// Switch returns the switch with the given id or nil.
func (b *JumpsBuilder) Switch(id int) *Switch {
	if b.frozen != nil {
		return b.frozen.Switch(id)
	}
	if id < 0 || id >= len(b.switches) {
		return nil
	}
	return b.switches[id]
}

// Freeze converts the builder into its fixed form. The first call releases
// the growable storage; later calls return the same Jumps.
func (b *JumpsBuilder) Freeze() *Jumps {
	if b.frozen != nil {
		return b.frozen
	}
	j := &Jumps{
		branches: make([]*Branch, len(b.branches)),
		switches: make([]*Switch, len(b.switches)),
	}
	copy(j.branches, b.branches)
	copy(j.switches, b.switches)
	b.branches = nil
	b.switches = nil
	b.frozen = j
	return j
}

// Frozen returns the frozen Jumps, or nil if Freeze was not called yet.
func (b *JumpsBuilder) Frozen() *Jumps {
	return b.frozen
}

// Jumps is the frozen, fixed-size set of branch and switch sites of a line.
// Sites can no longer be added or removed; only counters change.
type Jumps struct {
	branches []*Branch
	switches []*Switch
}

// EmptyJumps returns a Jumps without any site.
func EmptyJumps() *Jumps {
	return &Jumps{branches: []*Branch{}, switches: []*Switch{}}
}

// BranchCount returns the number of branch sites.
func (j *Jumps) BranchCount() int { return len(j.branches) }

// SwitchCount returns the number of switch sites.
func (j *Jumps) SwitchCount() int { return len(j.switches) }

// Branches returns the branch sites indexed by id.
func (j *Jumps) Branches() []*Branch { return j.branches }

// Switches returns the switch sites indexed by id.
func (j *Jumps) Switches() []*Switch { return j.switches }

// Branch returns the branch with the given id or nil.
func (j *Jumps) Branch(id int) *Branch {
	if id < 0 || id >= len(j.branches) {
		return nil
	}
	return j.branches[id]
}

// Switch returns the switch with the given id or nil.
func (j *Jumps) Switch(id int) *Switch {
	if id < 0 || id >= len(j.switches) {
		return nil
	}
	return j.switches[id]
}

// SwitchKeys returns the key set of every switch, indexed by id.
func (j *Jumps) SwitchKeys() [][]int32 {
	keys := make([][]int32, len(j.switches))
	for i, s := range j.switches {
		keys[i] = s.Keys()
	}
	return keys
}

// Merge adds the counters of other into j, id by id. j grows to the length
// of other when it is shorter, so no data of other is lost. Key mismatches
// and clamped counters are reported to r.
//
// Merge must not run concurrently with counter increments on either side.
func (j *Jumps) Merge(other *Jumps, r ErrorReporter) {
	if other == nil {
		return
	}
	r = orNop(r)

	var overflow bool
	if n := len(other.branches); len(j.branches) < n {
		grown := make([]*Branch, n)
		copy(grown, j.branches)
		j.branches = grown
	}
	for i, ob := range other.branches {
		if ob == nil {
			continue
		}
		if j.branches[i] == nil {
			j.branches[i] = &Branch{}
		}
		if j.branches[i].merge(ob) {
			overflow = true
		}
	}

	if n := len(other.switches); len(j.switches) < n {
		grown := make([]*Switch, n)
		copy(grown, j.switches)
		j.switches = grown
	}
	for i, s := range other.switches {
		if s == nil {
			continue
		}
		if j.switches[i] == nil {
			j.switches[i] = NewSwitch(s.Keys())
		}
		if j.switches[i].merge(i, s, r) {
			overflow = true
		}
	}

	if overflow {
		r.Report(OpMerge, ErrCounterOverflow)
	}
}

// Clone returns a deep copy of j.
func (j *Jumps) Clone() *Jumps {
	c := &Jumps{
		branches: make([]*Branch, len(j.branches)),
		switches: make([]*Switch, len(j.switches)),
	}
	for i, b := range j.branches {
		c.branches[i] = b.clone()
	}
	for i, s := range j.switches {
		c.switches[i] = s.clone()
	}
	return c
}
