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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/report"
)

func binaryReport(path string, withSourceMap bool) report.BinaryReport {
	br := report.BinaryReport{DataFile: path}
	if withSourceMap {
		br.SourceMapFile = path + flags.SourceMapSuffix
	}
	return br
}

func runMerge(ctx context.Context, logger log.Logger, reg prometheus.Registerer, stdout io.Writer, f flags.FlagsMerge) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	compression, err := report.ParseCompression(f.Compression)
	if err != nil {
		return err
	}

	inputs := make([]report.BinaryReport, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		inputs = append(inputs, binaryReport(in, f.SourceMaps))
	}

	rep := coverage.NewLogErrorReporter(logger, reg, 0)
	merged, err := report.MergeFiles(ctx, rep, inputs, f.Parallel)
	if err != nil {
		return fmt.Errorf("failed to merge reports: %w", err)
	}

	out := binaryReport(f.Output, f.SourceMaps)
	w := report.NewWriter(logger, reg, out.DataFile, report.EncodeOptions{Producer: f.Producer, Compression: compression})
	if err := out.Save(ctx, w, merged); err != nil {
		return fmt.Errorf("failed to write merged report: %w", err)
	}

	_, total := report.Summarize(merged)
	var size uint64
	if fi, err := os.Stat(out.DataFile); err == nil {
		size = uint64(fi.Size())
	}
	level.Debug(logger).Log("msg", "reports merged", "inputs", len(inputs), "duration", time.Since(start), "diagnostics", rep.TotalWritten())

	_, err = fmt.Fprintf(stdout, "merged %d reports into %s (%s): %s units, %s/%s lines covered\n",
		len(inputs), out.DataFile, humanize.Bytes(size),
		humanize.Comma(int64(merged.Len())),
		humanize.Comma(int64(total.CoveredLines)), humanize.Comma(int64(total.Lines)),
	)
	return err
}
