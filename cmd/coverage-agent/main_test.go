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

package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/hash"
	"github.com/parca-dev/coverage-agent/pkg/report"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	f, command, err := flags.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	err = run(context.Background(), log.NewNopLogger(), prometheus.NewRegistry(), &out, f, command)
	return out.String(), err
}

func writeReport(t *testing.T, path string, hits uint32) {
	t.Helper()

	run := coverage.NewRun(nil)
	u := coverage.NewUnit("a.B", 7, nil)
	u.Index().Add(3).Hits.Store(hits)
	u.Index().Add(5)
	u.SetFileMaps([]coverage.FileMap{{ClassName: "a.BKt", FileName: "B.kt"}})
	run.Register(u)

	w := report.NewWriter(log.NewNopLogger(), prometheus.NewRegistry(), path, report.EncodeOptions{})
	require.NoError(t, report.BinaryReport{DataFile: path, SourceMapFile: path + flags.SourceMapSuffix}.Save(context.Background(), w, run))
}

func TestSelectCommand(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "select", "--name=a.B", "--format-version=55", "--mode=tracing", "--condy=true")
	require.NoError(t, err)
	require.Contains(t, out, "strategy: tracing-condy\n")
	require.Contains(t, out, "version: 55.0.0\n")

	out, err = runCommand(t, "select", "--name=a.B$WhenMappings", "--access=synthetic,final")
	require.NoError(t, err)
	require.Contains(t, out, "strategy: skip\n")
	require.Contains(t, out, "skipped by: kotlin-when-mappings\n")

	// Test tracking needs tracing mode.
	_, err = runCommand(t, "select", "--name=a.B", "--test-tracking=true")
	require.Error(t, err)
}

func TestSelectCommandFingerprintsClassFile(t *testing.T) {
	t.Parallel()

	code := []byte("compiled a.B")
	path := filepath.Join(t.TempDir(), "B.class")
	require.NoError(t, os.WriteFile(path, code, 0o644))

	out, err := runCommand(t, "select", "--name=a.B", "--class-file="+path)
	require.NoError(t, err)
	require.Contains(t, out, fmt.Sprintf("fingerprint: %016x\n", hash.Bytes(code)))

	_, err = runCommand(t, "select", "--name=a.B", "--class-file="+path+".missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSelectCommandUsesConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "coverage-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: tracing\nexclude: ['a\\.Generated.*']\n"), 0o644))

	out, err := runCommand(t, "--config-path", path, "select", "--name=a.GeneratedFoo")
	require.NoError(t, err)
	require.Contains(t, out, "excluded by name")

	out, err = runCommand(t, "--config-path", path, "select", "--name=a.Foo")
	require.NoError(t, err)
	require.Contains(t, out, "strategy: tracing\n")
}

func TestMergeAndDumpCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.covr")
	b := filepath.Join(dir, "b.covr")
	writeReport(t, a, 1)
	writeReport(t, b, 2)

	merged := filepath.Join(dir, "merged.covr")
	out, err := runCommand(t, "merge", merged, a, b, "--source-maps", "--compression=none")
	require.NoError(t, err)
	require.Contains(t, out, "merged 2 reports into "+merged)
	require.Contains(t, out, "1 units, 1/2 lines covered")

	got, err := report.BinaryReport{DataFile: merged}.Load(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(3), got.Unit("a.B").Lines().Line(3).Hits.Load())

	out, err = runCommand(t, "dump", merged)
	require.NoError(t, err)
	require.Contains(t, out, "a.B")
	require.Contains(t, out, "1/2")

	out, err = runCommand(t, "dump", merged, "--unit=a.B", "--source-map="+merged+flags.SourceMapSuffix)
	require.NoError(t, err)
	require.Contains(t, out, "fingerprint: 0000000000000007\n")
	require.Contains(t, out, "covered lines: 3\n")
	require.Contains(t, out, "file: B.kt")

	_, err = runCommand(t, "dump", merged, "--unit=a.Missing")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "coverage-agent, version")
}
