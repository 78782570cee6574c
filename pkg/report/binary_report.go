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

package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/coverage-agent/pkg/coverage"
)

const opLoadSourceMap = "load source map"

// BinaryReport names a report file and its optional source map.
type BinaryReport struct {
	DataFile      string
	SourceMapFile string
}

// Load decodes the report. A source map that cannot be read is reported to
// rep and the run is returned without file maps.
func (b BinaryReport) Load(rep coverage.ErrorReporter) (*coverage.Run, error) {
	if rep == nil {
		rep = coverage.NopReporter()
	}
	f, err := os.Open(b.DataFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run, _, err := Decode(f, rep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.DataFile, err)
	}
	if b.SourceMapFile == "" {
		return run, nil
	}
	sm, err := LoadSourceMap(b.SourceMapFile)
	if err != nil {
		rep.Report(opLoadSourceMap, fmt.Errorf("%s: %w", b.SourceMapFile, err))
		return run, nil
	}
	sm.Apply(run)
	return run, nil
}

// Save writes run to the files of b, the source map only when it is named.
func (b BinaryReport) Save(ctx context.Context, w *Writer, run *coverage.Run) error {
	if w.Path() != b.DataFile {
		return fmt.Errorf("writer saves to %s, not %s", w.Path(), b.DataFile)
	}
	if err := w.Save(ctx, run); err != nil {
		return err
	}
	if b.SourceMapFile == "" {
		return nil
	}
	return SaveSourceMap(b.SourceMapFile, run)
}

// MergeFiles loads reports concurrently, at most limit at a time when limit
// is positive, and merges them in input order: the first report's units
// take precedence when fingerprints or switch keys disagree.
func MergeFiles(ctx context.Context, rep coverage.ErrorReporter, reports []BinaryReport, limit int) (*coverage.Run, error) {
	if len(reports) == 0 {
		return nil, errors.New("no reports to merge")
	}

	runs := make([]*coverage.Run, len(reports))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, r := range reports {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			run, err := r.Load(rep)
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := runs[0]
	for _, run := range runs[1:] {
		merged.Merge(run)
	}
	return merged, nil
}
