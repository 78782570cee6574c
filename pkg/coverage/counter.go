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
	"math"

	"go.uber.org/atomic"
)

// MaxCount is the value a Counter clamps to instead of wrapping around.
const MaxCount = math.MaxUint32

// Counter is a hit counter shared by all goroutines of the instrumented
// program. Increments never get lost and never wrap: once the counter
// reaches MaxCount it stays there.
//
// Reads are not synchronized with in-flight increments; an exact value is
// only observed once the producers are quiescent.
type Counter struct {
	v atomic.Uint32
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	for {
		old := c.v.Load()
		if old == MaxCount {
			return
		}
		if c.v.CompareAndSwap(old, old+1) {
			return
		}
	}
}

// Add adds n to the counter and reports whether the result was clamped.
func (c *Counter) Add(n uint32) (overflow bool) {
	for {
		old := c.v.Load()
		sum, clamped := SaturatingAdd(old, n)
		if c.v.CompareAndSwap(old, sum) {
			return clamped
		}
	}
}

// Load returns the current value.
func (c *Counter) Load() uint32 {
	return c.v.Load()
}

// Store overwrites the current value. It is used by decoders only.
func (c *Counter) Store(v uint32) {
	c.v.Store(v)
}

// SaturatingAdd returns a+b clamped to MaxCount, and whether clamping happened.
func SaturatingAdd(a, b uint32) (uint32, bool) {
	sum := uint64(a) + uint64(b)
	if sum > MaxCount {
		return MaxCount, true
	}
	return uint32(sum), false
}
