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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/version"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/buildinfo"
	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/logger"
)

const programName = "coverage-agent"

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() flags.ExitCode {
	f, command, err := flags.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return flags.ExitParseError
	}

	logger := logger.NewLogger(f.Log.Level, f.Log.Format, programName)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Debug(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS automatically", "err", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := run(context.Background(), logger, reg, os.Stdout, f, command); err != nil {
		level.Error(logger).Log("err", err)
		return flags.ExitFailure
	}
	return flags.ExitSuccess
}

func run(ctx context.Context, logger log.Logger, reg *prometheus.Registry, stdout io.Writer, f flags.Flags, command string) error {
	if command == "version" {
		return printVersion(stdout)
	}

	cfg := config.Default()
	if f.ConfigPath != "" {
		cfgFile, err := config.LoadFile(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		cfg = cfgFile
	}

	switch command {
	case "agent":
		return runAgent(ctx, logger, reg, f, cfg)
	case "merge <output> <inputs>":
		return runMerge(ctx, logger, reg, stdout, f.Merge)
	case "dump <file>":
		return runDump(logger, reg, stdout, f.Dump)
	case "select":
		return runSelect(stdout, f.Select, cfg)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printVersion(w io.Writer) error {
	if _, err := fmt.Fprintln(w, version.Print(programName)); err != nil {
		return err
	}
	bi, err := buildinfo.FetchBuildInfo()
	if err != nil {
		// Binaries built without module support carry no build info.
		return nil
	}
	_, err = fmt.Fprintln(w, "  build:", bi)
	return err
}
