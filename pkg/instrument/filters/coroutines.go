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

package filters

import (
	"strings"

	"github.com/parca-dev/coverage-agent/pkg/bytecode"
)

const (
	continuationSuffix = "Lkotlin/coroutines/Continuation;)" + bytecode.ObjectDesc

	intrinsicsOwner   = "kotlin/coroutines/intrinsics/IntrinsicsKt"
	suspendedAccessor = "getCOROUTINE_SUSPENDED"
	functionPrefix    = "kotlin/jvm/functions/Function"
)

// IsCoroutinesApplicable reports whether a method may contain a coroutine
// state machine: a suspend lambda body or a suspend function of a Kotlin
// unit.
func IsCoroutinesApplicable(class bytecode.ClassInfo, name, desc string) bool {
	return IsKotlinClass(class) &&
		(name == "invokeSuspend" || strings.HasSuffix(desc, continuationSuffix))
}

// Coroutines suppresses the sites the Kotlin compiler generates for the
// state machine of a suspend function: the dispatch on the state label, the
// comparisons of call results with the suspension marker and the lines that
// only hold such code.
type Coroutines struct {
	bytecode.Forward
	ctx Context

	getSuspendedVisited   bool
	storeSuspendedVisited bool
	loadSuspendedVisited  bool
	loadStateLabelVisited bool
	suspendCallVisited    bool
	suspendedSlot         int

	line           int
	hadLineDataPre bool
}

// NewCoroutines returns a filter in front of next. A fresh filter is needed
// for every method.
func NewCoroutines(next bytecode.MethodVisitor, ctx Context) *Coroutines {
	return &Coroutines{
		Forward:       bytecode.Forward{Next: next},
		ctx:           ctx,
		suspendedSlot: -1,
		line:          -1,
	}
}

func (c *Coroutines) VisitLineNumber(line int, start bytecode.Label) {
	c.hadLineDataPre = c.ctx.HasLine(line)
	c.Forward.VisitLineNumber(line, start)
	c.line = line
}

func (c *Coroutines) VisitMethodInsn(op bytecode.Opcode, owner, name, desc string, isInterface bool) {
	c.Forward.VisitMethodInsn(op, owner, name, desc, isInterface)

	getSuspended := op == bytecode.INVOKESTATIC &&
		owner == intrinsicsOwner &&
		name == suspendedAccessor &&
		desc == "()"+bytecode.ObjectDesc
	suspendCall := strings.HasSuffix(desc, continuationSuffix) ||
		strings.HasPrefix(owner, functionPrefix) &&
			name == "invoke" &&
			op == bytecode.INVOKEINTERFACE &&
			strings.HasSuffix(desc, ")"+bytecode.ObjectDesc)

	if getSuspended || suspendCall {
		c.getSuspendedVisited = c.getSuspendedVisited || getSuspended
		c.suspendCallVisited = c.suspendCallVisited || suspendCall
		return
	}
	c.getSuspendedVisited = false
	c.suspendCallVisited = false
}

func (c *Coroutines) VisitVarInsn(op bytecode.Opcode, slot int) {
	c.Forward.VisitVarInsn(op, slot)
	if !c.storeSuspendedVisited && c.getSuspendedVisited && op == bytecode.ASTORE {
		c.storeSuspendedVisited = true
		c.suspendedSlot = slot
	}
	c.loadSuspendedVisited = c.storeSuspendedVisited &&
		op == bytecode.ALOAD &&
		slot == c.suspendedSlot
}

// VisitJumpInsn drops the branch of a comparison between the result of a
// suspend call and the suspension marker, whether the marker was loaded
// from its slot or returned by the accessor right before.
func (c *Coroutines) VisitJumpInsn(op bytecode.Opcode, target bytecode.Label) {
	c.Forward.VisitJumpInsn(op, target)
	compareWithSuspended := c.loadSuspendedVisited || c.getSuspendedVisited
	if compareWithSuspended && c.suspendCallVisited && op == bytecode.IF_ACMPNE {
		c.ctx.IgnoreLastBranch()
		c.suspendCallVisited = false
	}
	c.loadSuspendedVisited = false
}

func (c *Coroutines) VisitFieldInsn(op bytecode.Opcode, owner, name, desc string) {
	c.Forward.VisitFieldInsn(op, owner, name, desc)
	labelVisited := name == "label" &&
		desc == "I" &&
		strings.HasPrefix(bytecode.ClassName(owner), c.ctx.ClassName())
	c.loadStateLabelVisited = labelVisited && op == bytecode.GETFIELD
}

// VisitTableSwitchInsn drops the dispatch on the state label.
func (c *Coroutines) VisitTableSwitchInsn(lo, hi int32, dflt bytecode.Label, labels []bytecode.Label) {
	c.Forward.VisitTableSwitchInsn(lo, hi, dflt, labels)
	if c.loadStateLabelVisited {
		c.ctx.IgnoreLastSwitch()
		if !c.hadLineDataPre {
			c.ctx.RemoveLine(c.line)
		}
	}
	c.loadStateLabelVisited = false
}

// VisitInsn drops the line of the generated early return of the marker.
func (c *Coroutines) VisitInsn(op bytecode.Opcode) {
	c.Forward.VisitInsn(op)
	if op == bytecode.ARETURN && c.loadSuspendedVisited && !c.hadLineDataPre {
		c.ctx.RemoveLine(c.line)
	}
}
