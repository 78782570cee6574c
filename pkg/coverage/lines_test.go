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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLinesEmpty(t *testing.T) {
	t.Parallel()

	x := NewLineIndex(nil)
	x.Add(3)
	require.Empty(t, BuildLines(NoLines, x))
	require.Empty(t, BuildLines(NoLines, nil))
	require.NotNil(t, BuildLines(NoLines, nil))
	require.Equal(t, NoLines, BuildLines(NoLines, nil).MaxLine())
}

func TestBuildLinesDense(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	x := NewLineIndex(r)
	for _, n := range []int{7, 2, 4} {
		x.Add(n).Jumps().AddBranch(0)
	}
	require.Equal(t, 7, x.MaxLine())
	require.Equal(t, 3, x.Len())

	lines := BuildLines(x.MaxLine(), x)
	require.Len(t, lines, 8)
	require.Nil(t, lines[0])
	require.Equal(t, 7, lines.MaxLine())

	var present []int
	for _, l := range lines.Present() {
		require.True(t, l.IsFrozen())
		require.Nil(t, l.Jumps().AddBranch(1))
		present = append(present, l.Number())
	}
	require.Equal(t, []int{2, 4, 7}, present)
	require.Equal(t, []uint32{2, 4, 7}, lines.Bitmap().ToArray())
	require.Len(t, r.errs, 3)
	require.ErrorIs(t, r.errs[0], ErrFrozen)

	require.Nil(t, lines.Line(0))
	require.Nil(t, lines.Line(3))
	require.Nil(t, lines.Line(8))
	require.Equal(t, 4, lines.Line(4).Number())
}

func TestLineIndexRejectsNonPositive(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	x := NewLineIndex(r)
	require.Nil(t, x.Add(0))
	require.Nil(t, x.Add(-4))
	require.Len(t, r.errs, 2)
	require.Equal(t, OpAddLine, r.ops[0])
	require.Equal(t, NoLines, x.MaxLine())
}

func TestLineIndexRemove(t *testing.T) {
	t.Parallel()

	x := NewLineIndex(nil)
	l := x.Add(5)
	require.Same(t, l, x.Add(5))
	x.Add(9)

	x.Remove(9)
	require.Equal(t, 5, x.MaxLine())
	x.Remove(100)
	require.Equal(t, 1, x.Len())
	x.Remove(5)
	require.Equal(t, NoLines, x.MaxLine())
}

func TestLineMergeRequiresFrozen(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	open := newLine(1, nil)
	other := NewFrozenLine(1, 3, nil)
	open.Merge(other, r)
	require.Zero(t, open.Hits.Load())
	require.Len(t, r.errs, 1)
	require.ErrorIs(t, r.errs[0], ErrNotFrozen)

	frozen := NewFrozenLine(1, 2, jumps([][2]uint32{{1, 1}}, nil, nil))
	frozen.Merge(other, r)
	require.Equal(t, uint32(5), frozen.Hits.Load())
	require.Equal(t, 1, frozen.Frozen().BranchCount())
}

func TestLineClone(t *testing.T) {
	t.Parallel()

	l := NewFrozenLine(4, 9, jumps([][2]uint32{{1, 2}}, nil, nil))
	c := l.Clone()
	c.Hits.Inc()
	c.Frozen().Branch(0).Taken.Inc()

	require.Equal(t, uint32(9), l.Hits.Load())
	require.Equal(t, uint32(1), l.Frozen().Branch(0).Taken.Load())
	require.Equal(t, 4, c.Number())
	require.Equal(t, uint32(2), c.Frozen().Branch(0).Taken.Load())

	open := newLine(2, nil)
	open.Jumps().AddBranch(3)
	require.Equal(t, 0, open.Clone().Frozen().BranchCount())
}

func TestCoveredBitmap(t *testing.T) {
	t.Parallel()

	lines := Lines{nil, NewFrozenLine(1, 0, nil), nil, NewFrozenLine(3, 1, nil)}
	require.Equal(t, []uint32{3}, lines.CoveredBitmap().ToArray())
	require.Equal(t, []uint32{1, 3}, lines.Bitmap().ToArray())
}
