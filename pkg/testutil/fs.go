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

// Package testutil holds failure injecting readers and file systems for
// tests.
package testutil

import (
	"io"
	"io/fs"
)

type errorReader struct {
	prefix io.Reader
	err    error
}

func (r *errorReader) Read(b []byte) (int, error) {
	n, err := r.prefix.Read(b)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

// NewErrorReader returns a reader yielding prefix, then failing with err.
func NewErrorReader(prefix io.Reader, err error) io.Reader {
	return &errorReader{prefix: prefix, err: err}
}

type failingFile struct {
	r io.Reader
}

func (f *failingFile) Stat() (fs.FileInfo, error) { return nil, fs.ErrInvalid }
func (f *failingFile) Read(b []byte) (int, error) { return f.r.Read(b) }
func (f *failingFile) Close() error               { return nil }

type errorfs struct {
	openErr error
	readErr error
}

func (f *errorfs) Open(string) (fs.File, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &failingFile{r: NewErrorReader(eofReader{}, f.readErr)}, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// NewErrorFS returns a file system whose Open fails with err.
func NewErrorFS(err error) fs.FS {
	return &errorfs{openErr: err}
}

// NewFailingReadFS returns a file system whose files open fine but fail with
// err on the first read.
func NewFailingReadFS(err error) fs.FS {
	return &errorfs{readErr: err}
}
