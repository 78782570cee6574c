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

package hash

import (
	"bytes"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/coverage-agent/pkg/testutil"
)

func TestFingerprintsAgree(t *testing.T) {
	t.Parallel()

	data := []byte("\xca\xfe\xba\xbe\x00\x00\x00\x37")
	fromReader, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, Bytes(data), fromReader)

	fsys := fstest.MapFS{"a/B.class": {Data: data}}
	fromFile, err := File(fsys, "a/B.class")
	require.NoError(t, err)
	require.Equal(t, fromReader, fromFile)

	require.NotEqual(t, Bytes(data), Bytes(data[:4]))

	_, err = File(fsys, "missing.class")
	require.Error(t, err)
}

func TestFingerprintErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	_, err := Reader(testutil.NewErrorReader(bytes.NewReader([]byte("partial")), errBoom))
	require.ErrorIs(t, err, errBoom)

	_, err = File(testutil.NewErrorFS(errBoom), "a/B.class")
	require.ErrorIs(t, err, errBoom)

	_, err = File(testutil.NewFailingReadFS(errBoom), "a/B.class")
	require.ErrorIs(t, err, errBoom)
}
