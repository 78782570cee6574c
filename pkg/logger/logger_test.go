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

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFiltersLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLoggerWithWriter(&buf, "warn", LogFormatLogfmt, "coverage-agent")
	require.NoError(t, err)

	level.Info(logger).Log("msg", "dropped")
	level.Warn(logger).Log("msg", "kept")

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, "msg=kept")
	require.Contains(t, out, "name=coverage-agent")
	require.Contains(t, out, "caller=logger_test.go")
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNewLoggerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLoggerWithWriter(&buf, "debug", LogFormatJSON, "")
	require.NoError(t, err)
	level.Debug(logger).Log("msg", "hello", "units", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "debug", line["level"])
	require.Contains(t, line, "ts")
	require.NotContains(t, line, "name")
}

func TestNewLoggerRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewLoggerWithWriter(&bytes.Buffer{}, "trace", LogFormatLogfmt, "")
	require.Error(t, err)
	_, err = NewLoggerWithWriter(&bytes.Buffer{}, "info", "xml", "")
	require.Error(t, err)
	require.Panics(t, func() { NewLogger("verbose", LogFormatLogfmt, "") })
}
