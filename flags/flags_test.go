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

package flags

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMerge(t *testing.T) {
	t.Parallel()

	f, cmd, err := Parse([]string{"merge", "out.covr", "a.covr", "b.covr"})
	require.NoError(t, err)
	require.Equal(t, "merge <output> <inputs>", cmd)
	require.Equal(t, "out.covr", f.Merge.Output)
	require.Equal(t, []string{"a.covr", "b.covr"}, f.Merge.Inputs)
	require.Equal(t, "zstd", f.Merge.Compression)
	require.Equal(t, defaultProducer, f.Merge.Producer)
	require.Equal(t, 5*time.Minute, f.Merge.Timeout)
	require.Equal(t, "info", f.Log.Level)
	require.Equal(t, "logfmt", f.Log.Format)
	require.Empty(t, f.Metrics.Address)

	_, _, err = Parse([]string{"merge", "out.covr", "a.covr", "--compression=gzip"})
	require.Error(t, err)
	_, _, err = Parse([]string{"merge", "out.covr", "a.covr", "--parallel=-1"})
	require.Error(t, err)
}

func TestParseGlobalFlags(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "coverage.covr")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	f, cmd, err := Parse([]string{"--log-level=debug", "--log-format=json", "--config-path=coverage-agent.yaml", "--metrics-address=:7072", "dump", file, "--unit=a.B"})
	require.NoError(t, err)
	require.Equal(t, "dump <file>", cmd)
	require.Equal(t, "debug", f.Log.Level)
	require.Equal(t, "json", f.Log.Format)
	require.Equal(t, "coverage-agent.yaml", f.ConfigPath)
	require.Equal(t, ":7072", f.Metrics.Address)
	require.Equal(t, "a.B", f.Dump.Unit)

	_, _, err = Parse([]string{"dump", filepath.Join(t.TempDir(), "missing.covr")})
	require.Error(t, err)
	_, _, err = Parse([]string{"--log-level=trace", "version"})
	require.Error(t, err)
}

func TestParseAgent(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]string{"agent"})
	require.Error(t, err)

	f, cmd, err := Parse([]string{"agent", "--report-path=out/coverage.covr", "--source-map"})
	require.NoError(t, err)
	require.Equal(t, "agent", cmd)
	require.Equal(t, defaultSaveInterval, f.Agent.SaveInterval)
	require.Equal(t, "out/coverage.covr.sourcemap.yaml", f.Agent.SourceMapPath())

	f.Agent.SourceMap = false
	require.Empty(t, f.Agent.SourceMapPath())

	_, _, err = Parse([]string{"agent", "--report-path=x", "--save-interval=10ms"})
	require.Error(t, err)
}

func TestParseSelect(t *testing.T) {
	t.Parallel()

	f, cmd, err := Parse([]string{"select", "--name=a.B", "--format-version=55", "--access=public,final", "--condy=true"})
	require.NoError(t, err)
	require.Equal(t, "select", cmd)
	require.Equal(t, []string{"public", "final"}, f.Select.Access)
	require.Equal(t, "java/lang/Object", f.Select.Super)

	condy, err := ParseOptionalBool(f.Select.Condy)
	require.NoError(t, err)
	require.True(t, *condy)
	tracking, err := ParseOptionalBool(f.Select.TestTracking)
	require.NoError(t, err)
	require.Nil(t, tracking)

	tests := [][]string{
		{"select"},
		{"select", "--name=a.B", "--mode=profiling"},
		{"select", "--name=a.B", "--condy=maybe"},
		{"select", "--name=a.B", "--access=sealed"},
	}
	for _, args := range tests {
		_, _, err := Parse(args)
		require.Error(t, err, args)
	}
}
