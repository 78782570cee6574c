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
	"encoding/binary"
	"fmt"
	"io"
)

// Byte order of every integer in persisted coverage data.
var ByteOrder = binary.BigEndian

// maxSites bounds the counts accepted by decoders so that a corrupt length
// cannot trigger a huge allocation.
const maxSites = 1 << 20

// AppendJumps appends the binary form of j to buf:
//
//	u32 branchCount, per branch: u32 taken, u32 notTaken
//	u32 switchCount, per switch: u32 keyCount, keyCount x u32 hits, u32 default
//
// A nil j is encoded as an empty set.
func AppendJumps(buf []byte, j *Jumps) []byte {
	if j == nil {
		j = EmptyJumps()
	}
	buf = ByteOrder.AppendUint32(buf, uint32(len(j.branches)))
	for _, b := range j.branches {
		buf = ByteOrder.AppendUint32(buf, b.Taken.Load())
		buf = ByteOrder.AppendUint32(buf, b.NotTaken.Load())
	}
	buf = ByteOrder.AppendUint32(buf, uint32(len(j.switches)))
	for _, s := range j.switches {
		buf = ByteOrder.AppendUint32(buf, uint32(len(s.hits)))
		for i := range s.hits {
			buf = ByteOrder.AppendUint32(buf, s.hits[i].Load())
		}
		buf = ByteOrder.AppendUint32(buf, s.Default.Load())
	}
	return buf
}

// Save writes the binary form of j to w. Identical data always produces
// identical bytes.
func (j *Jumps) Save(w io.Writer) error {
	_, err := w.Write(AppendJumps(nil, j))
	return err
}

// ReadJumps decodes a Jumps written by Save. The case keys are not part of
// the counter record; keys holds the key set of every switch, indexed by id,
// and must agree with the decoded key counts.
func ReadJumps(r io.Reader, keys [][]int32) (*Jumps, error) {
	branchCount, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("read branch count: %w", err)
	}
	j := &Jumps{branches: make([]*Branch, branchCount)}
	for i := range j.branches {
		var v [2]uint32
		if err := binary.Read(r, ByteOrder, &v); err != nil {
			return nil, fmt.Errorf("read branch %d: %w", i, err)
		}
		b := &Branch{}
		b.Taken.Store(v[0])
		b.NotTaken.Store(v[1])
		j.branches[i] = b
	}

	switchCount, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("read switch count: %w", err)
	}
	if switchCount != len(keys) {
		return nil, fmt.Errorf("%w: %d switches, %d key sets", ErrCorrupt, switchCount, len(keys))
	}
	j.switches = make([]*Switch, switchCount)
	for i := range j.switches {
		keyCount, err := readCount(r)
		if err != nil {
			return nil, fmt.Errorf("read switch %d key count: %w", i, err)
		}
		if keyCount != len(keys[i]) {
			return nil, fmt.Errorf("%w: switch %d has %d counters for %d keys", ErrCorrupt, i, keyCount, len(keys[i]))
		}
		v := make([]uint32, keyCount+1)
		if err := binary.Read(r, ByteOrder, v); err != nil {
			return nil, fmt.Errorf("read switch %d: %w", i, err)
		}
		s := NewSwitch(keys[i])
		for k := 0; k < keyCount; k++ {
			s.hits[k].Store(v[k])
		}
		s.Default.Store(v[keyCount])
		j.switches[i] = s
	}
	return j, nil
}

func readCount(r io.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, ByteOrder, &n); err != nil {
		return 0, err
	}
	if n > maxSites {
		return 0, fmt.Errorf("%w: count %d exceeds limit", ErrCorrupt, n)
	}
	return int(n), nil
}
