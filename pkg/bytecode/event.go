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

package bytecode

import (
	"fmt"
	"slices"
)

type EventKind uint8

const (
	EventLabel EventKind = iota
	EventLine
	EventInsn
	EventVar
	EventJump
	EventMethod
	EventField
	EventTableSwitch
	EventLookupSwitch
)

// Event is one recorded visitor call. Only the fields of its kind are set.
type Event struct {
	Kind EventKind
	Op   Opcode

	// Label is the label itself, the start of a line, the jump target or
	// the default case of a switch.
	Label Label
	Line  int
	Slot  int

	Owner     string
	Name      string
	Desc      string
	Interface bool

	Min, Max int32
	Keys     []int32
	Labels   []Label
}

// Accept replays the event on v.
func (e Event) Accept(v MethodVisitor) {
	switch e.Kind {
	case EventLabel:
		v.VisitLabel(e.Label)
	case EventLine:
		v.VisitLineNumber(e.Line, e.Label)
	case EventInsn:
		v.VisitInsn(e.Op)
	case EventVar:
		v.VisitVarInsn(e.Op, e.Slot)
	case EventJump:
		v.VisitJumpInsn(e.Op, e.Label)
	case EventMethod:
		v.VisitMethodInsn(e.Op, e.Owner, e.Name, e.Desc, e.Interface)
	case EventField:
		v.VisitFieldInsn(e.Op, e.Owner, e.Name, e.Desc)
	case EventTableSwitch:
		v.VisitTableSwitchInsn(e.Min, e.Max, e.Label, e.Labels)
	case EventLookupSwitch:
		v.VisitLookupSwitchInsn(e.Label, e.Keys, e.Labels)
	}
}

func (e Event) String() string {
	switch e.Kind {
	case EventLabel:
		return fmt.Sprintf("L%d:", e.Label)
	case EventLine:
		return fmt.Sprintf("LINE %d L%d", e.Line, e.Label)
	case EventVar:
		return fmt.Sprintf("%s %d", e.Op, e.Slot)
	case EventJump:
		return fmt.Sprintf("%s L%d", e.Op, e.Label)
	case EventMethod, EventField:
		return fmt.Sprintf("%s %s.%s %s", e.Op, e.Owner, e.Name, e.Desc)
	case EventTableSwitch:
		return fmt.Sprintf("TABLESWITCH %d..%d", e.Min, e.Max)
	case EventLookupSwitch:
		return fmt.Sprintf("LOOKUPSWITCH %v", e.Keys)
	default:
		return e.Op.String()
	}
}

// Recorder is a MethodVisitor that stores every event it receives. It is
// used to capture a method body and to assemble bodies by hand.
type Recorder struct {
	events []Event
}

var _ MethodVisitor = (*Recorder)(nil)

// Events returns the recorded events.
func (r *Recorder) Events() []Event { return r.events }

func (r *Recorder) VisitLabel(l Label) {
	r.events = append(r.events, Event{Kind: EventLabel, Label: l})
}

func (r *Recorder) VisitLineNumber(line int, start Label) {
	r.events = append(r.events, Event{Kind: EventLine, Line: line, Label: start})
}

func (r *Recorder) VisitInsn(op Opcode) {
	r.events = append(r.events, Event{Kind: EventInsn, Op: op})
}

func (r *Recorder) VisitVarInsn(op Opcode, slot int) {
	r.events = append(r.events, Event{Kind: EventVar, Op: op, Slot: slot})
}

func (r *Recorder) VisitJumpInsn(op Opcode, target Label) {
	r.events = append(r.events, Event{Kind: EventJump, Op: op, Label: target})
}

func (r *Recorder) VisitMethodInsn(op Opcode, owner, name, desc string, isInterface bool) {
	r.events = append(r.events, Event{Kind: EventMethod, Op: op, Owner: owner, Name: name, Desc: desc, Interface: isInterface})
}

func (r *Recorder) VisitFieldInsn(op Opcode, owner, name, desc string) {
	r.events = append(r.events, Event{Kind: EventField, Op: op, Owner: owner, Name: name, Desc: desc})
}

func (r *Recorder) VisitTableSwitchInsn(lo, hi int32, dflt Label, labels []Label) {
	r.events = append(r.events, Event{Kind: EventTableSwitch, Op: TABLESWITCH, Min: lo, Max: hi, Label: dflt, Labels: slices.Clone(labels)})
}

func (r *Recorder) VisitLookupSwitchInsn(dflt Label, keys []int32, labels []Label) {
	r.events = append(r.events, Event{Kind: EventLookupSwitch, Op: LOOKUPSWITCH, Label: dflt, Keys: slices.Clone(keys), Labels: slices.Clone(labels)})
}

func (r *Recorder) VisitEnd() {}
