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
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReplayThroughForward(t *testing.T) {
	t.Parallel()

	src := &Recorder{}
	src.VisitLabel(1)
	src.VisitLineNumber(10, 1)
	src.VisitMethodInsn(INVOKESTATIC, "kotlin/coroutines/intrinsics/IntrinsicsKt", "getCOROUTINE_SUSPENDED", "()"+ObjectDesc, false)
	src.VisitVarInsn(ASTORE, 3)
	src.VisitFieldInsn(GETFIELD, "a/B$c", "label", "I")
	src.VisitTableSwitchInsn(0, 1, 9, []Label{4, 5})
	src.VisitLookupSwitchInsn(9, []int32{-1, 7}, []Label{6, 7})
	src.VisitJumpInsn(IF_ACMPNE, 8)
	src.VisitInsn(ARETURN)

	m := Method{Name: "invokeSuspend", Desc: "(" + ObjectDesc + ")" + ObjectDesc, Body: src.Events()}
	dst := &Recorder{}
	m.Accept(Forward{Next: dst})

	if diff := cmp.Diff(src.Events(), dst.Events()); diff != "" {
		t.Fatalf("replayed body differs (-want +got):\n%s", diff)
	}

	// A forward without a next visitor swallows everything.
	m.Accept(Forward{})
}

func TestOpcodeClasses(t *testing.T) {
	t.Parallel()

	for _, op := range []Opcode{IFEQ, IFLE, IF_ICMPEQ, IF_ACMPNE, IFNULL, IFNONNULL} {
		require.True(t, op.IsConditionalJump(), op.String())
	}
	for _, op := range []Opcode{GOTO, TABLESWITCH, ARETURN, ALOAD} {
		require.False(t, op.IsConditionalJump(), op.String())
	}
	require.True(t, ARETURN.IsReturn())
	require.True(t, RETURN.IsReturn())
	require.False(t, ATHROW.IsReturn())
	require.Equal(t, "OPCODE(2)", Opcode(2).String())
}

func TestNamesAndVersions(t *testing.T) {
	t.Parallel()

	require.Equal(t, "org.example.Foo$Bar", ClassName("org/example/Foo$Bar"))
	require.Equal(t, "org/example/Foo", ClassInfo{Name: "org.example.Foo"}.InternalName())

	v := FormatVersion(55, 0)
	require.True(t, v.Equal(semver.MustParse("55.0.0")))
	require.True(t, FormatVersion(52, 0).LessThan(v))

	c := ClassInfo{Annotations: []string{"Lkotlin/Metadata;"}}
	require.True(t, c.HasAnnotation("Lkotlin/Metadata;"))
	require.True(t, (AccPrivate | AccStatic).Has(AccStatic))
	require.False(t, AccPrivate.Has(AccPrivate|AccStatic))
}
