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

// Package hash computes the fingerprints that identify the compiled form of
// a unit across runs.
package hash

import (
	"hash"
	"io"
	"io/fs"

	"github.com/minio/highwayhash"
)

// The key is fixed so fingerprints stay comparable between processes.
var key = []byte("coverage-agent fingerprint key 1")

// New returns a streaming fingerprint hash.
func New() (hash.Hash64, error) {
	return highwayhash.New64(key)
}

// Bytes returns the fingerprint of b.
func Bytes(b []byte) uint64 {
	return highwayhash.Sum64(b, key)
}

// Reader returns the fingerprint of everything read from r.
func Reader(r io.Reader) (uint64, error) {
	h, err := New()
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// File returns the fingerprint of the named file of fsys.
func File(fsys fs.FS, name string) (uint64, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return Reader(f)
}
