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
	"slices"

	"github.com/parca-dev/coverage-agent/pkg/bytecode"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/instrument/filters"
)

// EffectKind is the kind of counter an Effect increments.
type EffectKind uint8

const (
	EffectLine EffectKind = iota
	EffectBranch
	EffectSwitch
)

func (k EffectKind) String() string {
	switch k {
	case EffectBranch:
		return "branch"
	case EffectSwitch:
		return "switch"
	default:
		return "line"
	}
}

// Effect is one counter update the host inserts into the method code.
type Effect struct {
	Kind   EffectKind
	Method string
	Line   int
	// ID is the branch or switch id within the line.
	ID     int
	Keys   []int32
	Access Access
	// Tracked effects also record the running test.
	Tracked bool
}

func (e Effect) String() string {
	if e.Kind == EffectLine {
		return fmt.Sprintf("%s line %d (%s)", e.Method, e.Line, e.Access)
	}
	return fmt.Sprintf("%s line %d %s %d (%s)", e.Method, e.Line, e.Kind, e.ID, e.Access)
}

type site struct {
	line int
	id   int
}

// methodInstrumenter records the counters of one method into the unit's
// sparse line table. It sits behind the method filters and implements the
// context they retract sites through.
type methodInstrumenter struct {
	bytecode.Forward

	unit     *coverage.Unit
	index    *coverage.LineIndex
	decision Decision
	method   string
	metrics  *metrics

	line       *coverage.Line
	lastBranch *site
	lastSwitch *site
	effects    []Effect
}

var _ filters.Context = (*methodInstrumenter)(nil)

func newMethodInstrumenter(next bytecode.MethodVisitor, unit *coverage.Unit, d Decision, m bytecode.Method, met *metrics) *methodInstrumenter {
	return &methodInstrumenter{
		Forward:  bytecode.Forward{Next: next},
		unit:     unit,
		index:    unit.Index(),
		decision: d,
		method:   m.Name + m.Desc,
		metrics:  met,
	}
}

func (mi *methodInstrumenter) effect(kind EffectKind, line, id int, keys []int32) Effect {
	return Effect{
		Kind:    kind,
		Method:  mi.method,
		Line:    line,
		ID:      id,
		Keys:    keys,
		Access:  mi.decision.Access,
		Tracked: mi.decision.Strategy == StrategyTracingTracked,
	}
}

func (mi *methodInstrumenter) VisitLineNumber(line int, start bytecode.Label) {
	mi.line = mi.index.Add(line)
	if mi.line != nil {
		mi.effects = append(mi.effects, mi.effect(EffectLine, line, 0, nil))
	}
	mi.Forward.VisitLineNumber(line, start)
}

// VisitJumpInsn records a branch for conditional jumps. A conditional jump
// that gets no counter leaves nothing for IgnoreLastBranch to retract.
func (mi *methodInstrumenter) VisitJumpInsn(op bytecode.Opcode, target bytecode.Label) {
	if op.IsConditionalJump() {
		mi.lastBranch = nil
	}
	if mi.decision.Strategy.Tracing() && mi.line != nil && op.IsConditionalJump() {
		j := mi.line.Jumps()
		id := j.BranchCount()
		if j.AddBranch(id) != nil {
			mi.effects = append(mi.effects, mi.effect(EffectBranch, mi.line.Number(), id, nil))
			mi.lastBranch = &site{line: mi.line.Number(), id: id}
		}
	}
	mi.Forward.VisitJumpInsn(op, target)
}

func (mi *methodInstrumenter) VisitTableSwitchInsn(lo, hi int32, dflt bytecode.Label, labels []bytecode.Label) {
	mi.lastSwitch = nil
	if hi >= lo {
		keys := make([]int32, 0, int(hi-lo)+1)
		for k := lo; ; k++ {
			keys = append(keys, k)
			if k == hi {
				break
			}
		}
		mi.addSwitch(keys)
	}
	mi.Forward.VisitTableSwitchInsn(lo, hi, dflt, labels)
}

func (mi *methodInstrumenter) VisitLookupSwitchInsn(dflt bytecode.Label, keys []int32, labels []bytecode.Label) {
	mi.addSwitch(keys)
	mi.Forward.VisitLookupSwitchInsn(dflt, keys, labels)
}

func (mi *methodInstrumenter) addSwitch(keys []int32) {
	mi.lastSwitch = nil
	if !mi.decision.Strategy.Tracing() || mi.line == nil {
		return
	}
	j := mi.line.Jumps()
	id := j.SwitchCount()
	s := j.AddSwitch(id, keys)
	if s == nil {
		return
	}
	mi.effects = append(mi.effects, mi.effect(EffectSwitch, mi.line.Number(), id, s.Keys()))
	mi.lastSwitch = &site{line: mi.line.Number(), id: id}
}

func (mi *methodInstrumenter) ClassName() string { return mi.unit.Name() }

func (mi *methodInstrumenter) HasLine(line int) bool { return mi.index.Get(line) != nil }

func (mi *methodInstrumenter) RemoveLine(line int) {
	if mi.index.Get(line) == nil {
		return
	}
	mi.index.Remove(line)
	mi.effects = slices.DeleteFunc(mi.effects, func(e Effect) bool { return e.Line == line })
	if mi.line != nil && mi.line.Number() == line {
		mi.line = nil
	}
	if mi.lastBranch != nil && mi.lastBranch.line == line {
		mi.lastBranch = nil
	}
	if mi.lastSwitch != nil && mi.lastSwitch.line == line {
		mi.lastSwitch = nil
	}
	mi.metrics.suppressed.WithLabelValues(EffectLine.String()).Inc()
}

func (mi *methodInstrumenter) IgnoreLastBranch() {
	s := mi.lastBranch
	if s == nil {
		return
	}
	mi.lastBranch = nil
	if l := mi.index.Get(s.line); l != nil {
		l.Jumps().RemoveBranch(s.id)
	}
	mi.dropEffect(EffectBranch, s)
}

func (mi *methodInstrumenter) IgnoreLastSwitch() {
	s := mi.lastSwitch
	if s == nil {
		return
	}
	mi.lastSwitch = nil
	if l := mi.index.Get(s.line); l != nil {
		l.Jumps().RemoveSwitch(s.id)
	}
	mi.dropEffect(EffectSwitch, s)
}

func (mi *methodInstrumenter) dropEffect(kind EffectKind, s *site) {
	mi.effects = slices.DeleteFunc(mi.effects, func(e Effect) bool {
		return e.Kind == kind && e.Line == s.line && e.ID == s.id
	})
	mi.metrics.suppressed.WithLabelValues(kind.String()).Inc()
}

// Effects returns the counter updates recorded for the method.
func (mi *methodInstrumenter) Effects() []Effect { return mi.effects }
