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

// Label marks a position in a method body. Labels are only compared for
// identity.
type Label int

// MethodVisitor receives the instructions of one method body in order.
// Visitors are chained: a filter handles an event and then passes it on to
// the next visitor, or drops it.
type MethodVisitor interface {
	VisitLabel(l Label)
	VisitLineNumber(line int, start Label)
	VisitInsn(op Opcode)
	VisitVarInsn(op Opcode, slot int)
	VisitJumpInsn(op Opcode, target Label)
	VisitMethodInsn(op Opcode, owner, name, desc string, isInterface bool)
	VisitFieldInsn(op Opcode, owner, name, desc string)
	VisitTableSwitchInsn(lo, hi int32, dflt Label, labels []Label)
	VisitLookupSwitchInsn(dflt Label, keys []int32, labels []Label)
	VisitEnd()
}

// Forward passes every event to Next. Embed it in a visitor and override
// only the events of interest. A nil Next drops everything.
type Forward struct {
	Next MethodVisitor
}

var _ MethodVisitor = Forward{}

func (f Forward) VisitLabel(l Label) {
	if f.Next != nil {
		f.Next.VisitLabel(l)
	}
}

func (f Forward) VisitLineNumber(line int, start Label) {
	if f.Next != nil {
		f.Next.VisitLineNumber(line, start)
	}
}

func (f Forward) VisitInsn(op Opcode) {
	if f.Next != nil {
		f.Next.VisitInsn(op)
	}
}

func (f Forward) VisitVarInsn(op Opcode, slot int) {
	if f.Next != nil {
		f.Next.VisitVarInsn(op, slot)
	}
}

func (f Forward) VisitJumpInsn(op Opcode, target Label) {
	if f.Next != nil {
		f.Next.VisitJumpInsn(op, target)
	}
}

func (f Forward) VisitMethodInsn(op Opcode, owner, name, desc string, isInterface bool) {
	if f.Next != nil {
		f.Next.VisitMethodInsn(op, owner, name, desc, isInterface)
	}
}

func (f Forward) VisitFieldInsn(op Opcode, owner, name, desc string) {
	if f.Next != nil {
		f.Next.VisitFieldInsn(op, owner, name, desc)
	}
}

func (f Forward) VisitTableSwitchInsn(lo, hi int32, dflt Label, labels []Label) {
	if f.Next != nil {
		f.Next.VisitTableSwitchInsn(lo, hi, dflt, labels)
	}
}

func (f Forward) VisitLookupSwitchInsn(dflt Label, keys []int32, labels []Label) {
	if f.Next != nil {
		f.Next.VisitLookupSwitchInsn(dflt, keys, labels)
	}
}

func (f Forward) VisitEnd() {
	if f.Next != nil {
		f.Next.VisitEnd()
	}
}
