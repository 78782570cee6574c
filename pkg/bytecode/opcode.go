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

import "fmt"

// Opcode is a stack machine instruction code. Values match the class file
// encoding so decoded method bodies can be passed through unchanged.
type Opcode uint8

const (
	NOP         Opcode = 0
	ACONST_NULL Opcode = 1
	ICONST_0    Opcode = 3

	ILOAD  Opcode = 21
	ALOAD  Opcode = 25
	ISTORE Opcode = 54
	ASTORE Opcode = 58
	POP    Opcode = 87
	DUP    Opcode = 89

	IFEQ      Opcode = 153
	IFNE      Opcode = 154
	IFLT      Opcode = 155
	IFGE      Opcode = 156
	IFGT      Opcode = 157
	IFLE      Opcode = 158
	IF_ICMPEQ Opcode = 159
	IF_ICMPNE Opcode = 160
	IF_ICMPLT Opcode = 161
	IF_ICMPGE Opcode = 162
	IF_ICMPGT Opcode = 163
	IF_ICMPLE Opcode = 164
	IF_ACMPEQ Opcode = 165
	IF_ACMPNE Opcode = 166
	GOTO      Opcode = 167

	TABLESWITCH  Opcode = 170
	LOOKUPSWITCH Opcode = 171

	IRETURN Opcode = 172
	LRETURN Opcode = 173
	FRETURN Opcode = 174
	DRETURN Opcode = 175
	ARETURN Opcode = 176
	RETURN  Opcode = 177

	GETSTATIC Opcode = 178
	PUTSTATIC Opcode = 179
	GETFIELD  Opcode = 180
	PUTFIELD  Opcode = 181

	INVOKEVIRTUAL   Opcode = 182
	INVOKESPECIAL   Opcode = 183
	INVOKESTATIC    Opcode = 184
	INVOKEINTERFACE Opcode = 185
	INVOKEDYNAMIC   Opcode = 186

	NEW    Opcode = 187
	ATHROW Opcode = 191

	IFNULL    Opcode = 198
	IFNONNULL Opcode = 199
)

var opcodeNames = map[Opcode]string{
	NOP: "NOP", ACONST_NULL: "ACONST_NULL", ICONST_0: "ICONST_0",
	ILOAD: "ILOAD", ALOAD: "ALOAD", ISTORE: "ISTORE", ASTORE: "ASTORE",
	POP: "POP", DUP: "DUP",
	IFEQ: "IFEQ", IFNE: "IFNE", IFLT: "IFLT", IFGE: "IFGE", IFGT: "IFGT", IFLE: "IFLE",
	IF_ICMPEQ: "IF_ICMPEQ", IF_ICMPNE: "IF_ICMPNE", IF_ICMPLT: "IF_ICMPLT",
	IF_ICMPGE: "IF_ICMPGE", IF_ICMPGT: "IF_ICMPGT", IF_ICMPLE: "IF_ICMPLE",
	IF_ACMPEQ: "IF_ACMPEQ", IF_ACMPNE: "IF_ACMPNE", GOTO: "GOTO",
	TABLESWITCH: "TABLESWITCH", LOOKUPSWITCH: "LOOKUPSWITCH",
	IRETURN: "IRETURN", LRETURN: "LRETURN", FRETURN: "FRETURN", DRETURN: "DRETURN",
	ARETURN: "ARETURN", RETURN: "RETURN",
	GETSTATIC: "GETSTATIC", PUTSTATIC: "PUTSTATIC", GETFIELD: "GETFIELD", PUTFIELD: "PUTFIELD",
	INVOKEVIRTUAL: "INVOKEVIRTUAL", INVOKESPECIAL: "INVOKESPECIAL",
	INVOKESTATIC: "INVOKESTATIC", INVOKEINTERFACE: "INVOKEINTERFACE",
	INVOKEDYNAMIC: "INVOKEDYNAMIC", NEW: "NEW", ATHROW: "ATHROW",
	IFNULL: "IFNULL", IFNONNULL: "IFNONNULL",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("OPCODE(%d)", uint8(o))
}

// IsConditionalJump returns true for two-way branches, the instructions
// that get a branch site when instrumented.
func (o Opcode) IsConditionalJump() bool {
	return (o >= IFEQ && o <= IF_ACMPNE) || o == IFNULL || o == IFNONNULL
}

// IsReturn returns true for the instructions that leave the method normally.
func (o Opcode) IsReturn() bool {
	return o >= IRETURN && o <= RETURN
}
