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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/coverage"
	"github.com/parca-dev/coverage-agent/pkg/report"
)

func defaultTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator(" ")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	return table
}

func ratio(covered, total uint64) string {
	return humanize.Comma(int64(covered)) + "/" + humanize.Comma(int64(total))
}

func summaryRow(s report.Summary) []string {
	return []string{
		s.Name,
		ratio(s.CoveredLines, s.Lines),
		ratio(uint64(s.CoveredBranches), uint64(s.Branches)),
		ratio(uint64(s.CoveredCases), uint64(s.Cases)),
	}
}

func runDump(logger log.Logger, reg prometheus.Registerer, stdout io.Writer, f flags.FlagsDump) error {
	rep := coverage.NewLogErrorReporter(logger, reg, 0)
	run, err := report.BinaryReport{DataFile: f.File, SourceMapFile: f.SourceMap}.Load(rep)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	if f.Unit != "" {
		return dumpUnit(stdout, run, f.Unit)
	}

	units, total := report.Summarize(run)
	tbl := defaultTable(stdout)
	tbl.SetHeader([]string{"Unit", "Lines", "Branches", "Cases"})
	for _, s := range units {
		tbl.Append(summaryRow(s))
	}
	total.Name = "total"
	tbl.SetFooter(summaryRow(total))
	tbl.Render()
	return nil
}

func dumpUnit(stdout io.Writer, run *coverage.Run, name string) error {
	u := run.Unit(name)
	if u == nil {
		return fmt.Errorf("unit %s not in report", name)
	}

	tbl := defaultTable(stdout)
	tbl.SetHeader([]string{"Unit", "Lines", "Branches", "Cases"})
	tbl.Append(summaryRow(report.SummarizeUnit(u)))
	tbl.Render()

	covered := report.CoveredLines(run, name).ToArray()
	lines := make([]string, 0, len(covered))
	for _, n := range covered {
		lines = append(lines, strconv.FormatUint(uint64(n), 10))
	}
	if _, err := fmt.Fprintf(stdout, "fingerprint: %016x\ncovered lines: %s\n", u.Fingerprint(), strings.Join(lines, " ")); err != nil {
		return err
	}
	for _, fm := range u.FileMaps() {
		if _, err := fmt.Fprintln(stdout, "file map:", fm); err != nil {
			return err
		}
	}
	return nil
}
