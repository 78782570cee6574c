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

package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromSettings(t *testing.T) {
	t.Parallel()

	b := fromSettings("go1.22.2", []debug.BuildSetting{
		{Key: "GOARCH", Value: "amd64"},
		{Key: "GOOS", Value: "linux"},
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "CGO_ENABLED", Value: "0"},
	})
	require.Equal(t, "abc123-dirty", b.Revision())
	require.Equal(t, "revision abc123-dirty (2024-05-01T10:00:00Z), go1.22.2 linux/amd64", b.String())

	require.Equal(t, "unknown", fromSettings("", nil).Revision())
}
