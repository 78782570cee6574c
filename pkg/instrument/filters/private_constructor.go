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
	"github.com/parca-dev/coverage-agent/pkg/bytecode"
)

// UtilClassConstructor returns the index in methods of the private no-arg
// constructor of a utility class, or -1. A utility class is a concrete class
// whose only instance method is that constructor and whose constructor does
// nothing but call the super constructor.
func UtilClassConstructor(class bytecode.ClassInfo, methods []bytecode.Method) int {
	if class.Access&(bytecode.AccInterface|bytecode.AccAbstract|bytecode.AccEnum|bytecode.AccAnnotation) != 0 {
		return -1
	}

	ctor, statics := -1, 0
	for i, m := range methods {
		switch {
		case m.IsConstructor():
			if ctor != -1 || m.Desc != "()V" || !m.Access.Has(bytecode.AccPrivate) {
				return -1
			}
			ctor = i
		case m.Access.Has(bytecode.AccStatic):
			statics++
		default:
			return -1
		}
	}
	if ctor == -1 || statics == 0 || !onlyCallsSuper(class, methods[ctor]) {
		return -1
	}
	return ctor
}

func onlyCallsSuper(class bytecode.ClassInfo, m bytecode.Method) bool {
	superCalled := false
	for _, e := range m.Body {
		switch e.Kind {
		case bytecode.EventLabel, bytecode.EventLine:
		case bytecode.EventVar:
			if e.Op != bytecode.ALOAD || e.Slot != 0 {
				return false
			}
		case bytecode.EventMethod:
			if superCalled || e.Op != bytecode.INVOKESPECIAL || e.Owner != class.SuperName || e.Name != "<init>" || e.Desc != "()V" {
				return false
			}
			superCalled = true
		case bytecode.EventInsn:
			if e.Op != bytecode.RETURN {
				return false
			}
		default:
			return false
		}
	}
	return superCalled
}

// PrivateConstructor removes every line of the method it wraps once the
// method has been visited. It wraps the constructor selected by
// UtilClassConstructor, which can never run.
type PrivateConstructor struct {
	bytecode.Forward
	ctx   Context
	lines []int
}

// NewPrivateConstructor returns a filter in front of next.
func NewPrivateConstructor(next bytecode.MethodVisitor, ctx Context) *PrivateConstructor {
	return &PrivateConstructor{Forward: bytecode.Forward{Next: next}, ctx: ctx}
}

func (p *PrivateConstructor) VisitLineNumber(line int, start bytecode.Label) {
	if !p.ctx.HasLine(line) {
		p.lines = append(p.lines, line)
	}
	p.Forward.VisitLineNumber(line, start)
}

func (p *PrivateConstructor) VisitEnd() {
	for _, l := range p.lines {
		p.ctx.RemoveLine(l)
	}
	p.Forward.VisitEnd()
}
