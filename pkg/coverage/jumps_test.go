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
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mtx  sync.Mutex
	ops  []string
	errs []error
}

func (r *recordingReporter) Report(op string, err error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

// snapshot is a plain-value view of a Jumps used to compare counters.
type snapshot struct {
	Branches [][2]uint32
	Switches []switchSnapshot
}

type switchSnapshot struct {
	Keys    []int32
	Hits    []uint32
	Default uint32
}

func snap(j *Jumps) snapshot {
	s := snapshot{Branches: [][2]uint32{}, Switches: []switchSnapshot{}}
	for _, b := range j.Branches() {
		s.Branches = append(s.Branches, [2]uint32{b.Taken.Load(), b.NotTaken.Load()})
	}
	for _, sw := range j.Switches() {
		ss := switchSnapshot{Keys: append([]int32{}, sw.Keys()...), Hits: []uint32{}, Default: sw.Default.Load()}
		for i := 0; i < sw.KeyCount(); i++ {
			ss.Hits = append(ss.Hits, sw.Hit(i).Load())
		}
		s.Switches = append(s.Switches, ss)
	}
	return s
}

// jumps builds a frozen Jumps with the given branch counters and one switch
// per entry of switches; the last value of each entry is the default count.
func jumps(branches [][2]uint32, keys [][]int32, switches [][]uint32) *Jumps {
	b := NewJumpsBuilder(nil)
	for i, c := range branches {
		br := b.AddBranch(i)
		br.Taken.Store(c[0])
		br.NotTaken.Store(c[1])
	}
	for i, c := range switches {
		sw := b.AddSwitch(i, keys[i])
		for k := 0; k < sw.KeyCount(); k++ {
			sw.Hit(k).Store(c[k])
		}
		sw.Default.Store(c[len(c)-1])
	}
	return b.Freeze()
}

func TestFreezeFillsGaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		branches []int
		switches []int
	}{
		{name: "empty"},
		{name: "contiguous", branches: []int{0, 1, 2}, switches: []int{0, 1}},
		{name: "out of order", branches: []int{4, 1, 7}, switches: []int{3, 0}},
		{name: "repeated", branches: []int{2, 2, 2}, switches: []int{1, 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewJumpsBuilder(nil)
			maxBranch, maxSwitch := -1, -1
			for _, id := range tt.branches {
				require.NotNil(t, b.AddBranch(id))
				maxBranch = max(maxBranch, id)
			}
			for _, id := range tt.switches {
				require.NotNil(t, b.AddSwitch(id, []int32{1, 2}))
				maxSwitch = max(maxSwitch, id)
			}

			j := b.Freeze()
			require.NotNil(t, j.Branches())
			require.NotNil(t, j.Switches())
			require.Equal(t, maxBranch+1, j.BranchCount())
			require.Equal(t, maxSwitch+1, j.SwitchCount())
			for _, br := range j.Branches() {
				require.Zero(t, br.Taken.Load())
				require.Zero(t, br.NotTaken.Load())
			}
			for _, sw := range j.Switches() {
				require.Zero(t, sw.Default.Load())
			}
		})
	}
}

func TestAddSwitchKeepsFirstKeys(t *testing.T) {
	t.Parallel()

	b := NewJumpsBuilder(nil)
	first := b.AddSwitch(2, []int32{1, 2, 3})
	again := b.AddSwitch(2, []int32{9})
	require.Same(t, first, again)
	require.Equal(t, []int32{1, 2, 3}, again.Keys())

	// Gap-filling placeholders carry no keys.
	require.Equal(t, 0, b.Switch(0).KeyCount())
	require.Equal(t, 0, b.Switch(1).KeyCount())
}

func TestFreezeIsIdempotentAndFinal(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	b := NewJumpsBuilder(r)
	b.AddBranch(1)

	j := b.Freeze()
	require.Same(t, j, b.Freeze())

	require.Nil(t, b.AddBranch(3))
	require.Nil(t, b.AddSwitch(0, []int32{1}))
	b.RemoveBranch(0)
	require.Equal(t, 2, j.BranchCount())
	require.Equal(t, 0, j.SwitchCount())
	require.Len(t, r.errs, 3)
	for _, err := range r.errs {
		require.ErrorIs(t, err, ErrFrozen)
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	b := NewJumpsBuilder(r)
	for id := 0; id <= 2; id++ {
		b.AddBranch(id)
	}
	want := []*Branch{b.Branch(0), b.Branch(1), b.Branch(2)}

	b.RemoveBranch(5)
	b.RemoveSwitch(0)

	require.Len(t, r.errs, 2)
	var ierr *IndexError
	require.True(t, errors.As(r.errs[0], &ierr))
	require.Equal(t, 5, ierr.Index)
	require.Equal(t, 3, ierr.Len)
	require.Equal(t, OpRemoveBranch, r.ops[0])
	require.Equal(t, OpRemoveSwitch, r.ops[1])

	j := b.Freeze()
	require.Equal(t, want, j.Branches())
}

func TestRemoveShiftsIds(t *testing.T) {
	t.Parallel()

	b := NewJumpsBuilder(nil)
	b0, b1, b2 := b.AddBranch(0), b.AddBranch(1), b.AddBranch(2)
	b.RemoveBranch(1)
	require.Equal(t, 2, b.BranchCount())
	require.Same(t, b0, b.Branch(0))
	require.Same(t, b2, b.Branch(1))
	require.NotSame(t, b1, b.Branch(1))

	b.AddSwitch(0, []int32{1})
	s1 := b.AddSwitch(1, []int32{2})
	b.RemoveSwitch(0)
	require.Same(t, s1, b.Switch(0))
}

func TestMergeGrowsReceiver(t *testing.T) {
	t.Parallel()

	a := jumps([][2]uint32{{1, 2}}, nil, nil)
	b := jumps([][2]uint32{{3, 4}, {5, 6}}, [][]int32{{7}}, [][]uint32{{1, 2}})

	a.Merge(b, nil)
	require.Equal(t, snapshot{
		Branches: [][2]uint32{{4, 6}, {5, 6}},
		Switches: []switchSnapshot{{Keys: []int32{7}, Hits: []uint32{1}, Default: 2}},
	}, snap(a))

	// The other side is left untouched.
	require.Equal(t, [][2]uint32{{3, 4}, {5, 6}}, snap(b).Branches)
}

func TestMergeCommutativeAndAssociative(t *testing.T) {
	t.Parallel()

	keys := [][]int32{{1, 2}, {5}}
	make3 := func() (*Jumps, *Jumps, *Jumps) {
		return jumps([][2]uint32{{1, 0}, {2, 3}}, keys[:1], [][]uint32{{1, 1, 0}}),
			jumps([][2]uint32{{0, 9}}, keys, [][]uint32{{0, 4, 2}, {3, 3}}),
			jumps([][2]uint32{{7, 7}, {1, 1}, {2, 2}}, nil, nil)
	}

	a, b, _ := make3()
	a.Merge(b, nil)
	ab := snap(a)
	a, b, _ = make3()
	b.Merge(a, nil)
	ba := snap(b)
	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Fatalf("merge is not commutative (-ab +ba):\n%s", diff)
	}

	// (a+b)+c
	a, b, c := make3()
	a.Merge(b, nil)
	a.Merge(c, nil)
	left := snap(a)

	// a+(b+c)
	a, b, c = make3()
	b.Merge(c, nil)
	a.Merge(b, nil)
	right := snap(a)
	if diff := cmp.Diff(left, right); diff != "" {
		t.Fatalf("merge is not associative (-left +right):\n%s", diff)
	}
}

func TestMergeSaturates(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	a := jumps([][2]uint32{{math.MaxUint32 - 1, 10}}, nil, nil)
	b := jumps([][2]uint32{{5, 10}}, nil, nil)
	a.Merge(b, r)

	require.Equal(t, [][2]uint32{{math.MaxUint32, 20}}, snap(a).Branches)
	require.Len(t, r.errs, 1)
	require.ErrorIs(t, r.errs[0], ErrCounterOverflow)
}

func TestMergeKeyMismatch(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	a := jumps(nil, [][]int32{{1, 2}}, [][]uint32{{1, 1, 1}})
	b := jumps(nil, [][]int32{{1, 2, 3}}, [][]uint32{{2, 2, 2, 2}})
	a.Merge(b, r)

	require.Len(t, r.errs, 1)
	var kerr *KeyMismatchError
	require.True(t, errors.As(r.errs[0], &kerr))
	require.Equal(t, 0, kerr.ID)
	require.Equal(t, []switchSnapshot{{
		Keys:    []int32{1, 2, 3},
		Hits:    []uint32{3, 3, 2},
		Default: 3,
	}}, snap(a).Switches)
}

func TestMergePlaceholderTakesKeys(t *testing.T) {
	t.Parallel()

	r := &recordingReporter{}
	bld := NewJumpsBuilder(nil)
	bld.AddSwitch(1, []int32{4})
	a := bld.Freeze() // switch 0 is a key-less placeholder
	b := jumps(nil, [][]int32{{8, 9}, {4}}, [][]uint32{{1, 2, 3}, {4, 5}})
	a.Merge(b, r)

	require.Empty(t, r.errs)
	require.Equal(t, []switchSnapshot{
		{Keys: []int32{8, 9}, Hits: []uint32{1, 2}, Default: 3},
		{Keys: []int32{4}, Hits: []uint32{4}, Default: 5},
	}, snap(a).Switches)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	keys := [][]int32{{-1, 0, 10}, {}}
	x := jumps([][2]uint32{{1, 2}, {0, 0}, {100, 7}}, keys, [][]uint32{{1, 2, 3, 4}, {5}})

	var buf bytes.Buffer
	require.NoError(t, x.Save(&buf))

	loaded, err := ReadJumps(bytes.NewReader(buf.Bytes()), x.SwitchKeys())
	require.NoError(t, err)
	require.Equal(t, snap(x), snap(loaded))

	loaded.Merge(x, nil)
	require.Equal(t, snapshot{
		Branches: [][2]uint32{{2, 4}, {0, 0}, {200, 14}},
		Switches: []switchSnapshot{
			{Keys: []int32{-1, 0, 10}, Hits: []uint32{2, 4, 6}, Default: 8},
			{Keys: []int32{}, Hits: []uint32{}, Default: 10},
		},
	}, snap(loaded))
}

func TestSaveIsDeterministicAndEmptyIsValid(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	x := jumps([][2]uint32{{3, 4}}, [][]int32{{1}}, [][]uint32{{5, 6}})
	require.NoError(t, x.Save(&a))
	require.NoError(t, x.Save(&b))
	require.Equal(t, a.Bytes(), b.Bytes())
	require.Equal(t, []byte{
		0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 4,
		0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 5, 0, 0, 0, 6,
	}, a.Bytes())

	var empty bytes.Buffer
	require.NoError(t, NewJumpsBuilder(nil).Freeze().Save(&empty))
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, empty.Bytes())
	j, err := ReadJumps(&empty, nil)
	require.NoError(t, err)
	require.Equal(t, 0, j.BranchCount())
	require.Equal(t, 0, j.SwitchCount())
}

func TestReadJumpsRejectsKeyCountMismatch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	x := jumps(nil, [][]int32{{1, 2}}, [][]uint32{{1, 2, 3}})
	require.NoError(t, x.Save(&buf))

	_, err := ReadJumps(bytes.NewReader(buf.Bytes()), [][]int32{{1}})
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = ReadJumps(bytes.NewReader(buf.Bytes()), nil)
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = ReadJumps(bytes.NewReader(buf.Bytes()[:5]), [][]int32{{1, 2}})
	require.Error(t, err)
}
