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
	"fmt"
	"os"
	"slices"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/coverage-agent/pkg/coverage"
)

// SourceMap holds the file maps of units, keyed by unit name.
type SourceMap map[string][]coverage.FileMap

type sourceMapEntry struct {
	Unit string             `yaml:"unit"`
	Maps []coverage.FileMap `yaml:"maps"`
}

// SourceMapOf collects the file maps of every unit of run that has any.
func SourceMapOf(run *coverage.Run) SourceMap {
	sm := SourceMap{}
	for _, u := range run.Units() {
		if fm := u.FileMaps(); len(fm) > 0 {
			sm[u.Name()] = fm
		}
	}
	return sm
}

// Apply sets the file maps of the units of run named in sm. Names unknown to
// run are ignored.
func (sm SourceMap) Apply(run *coverage.Run) {
	for name, fm := range sm {
		if u := run.Unit(name); u != nil {
			u.SetFileMaps(fm)
		}
	}
}

// Marshal returns the YAML form of sm, ordered by unit name.
func (sm SourceMap) Marshal() ([]byte, error) {
	names := maps.Keys(sm)
	slices.Sort(names)
	entries := make([]sourceMapEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, sourceMapEntry{Unit: n, Maps: sm[n]})
	}
	return yaml.Marshal(entries)
}

// ParseSourceMap parses the YAML form written by Marshal.
func ParseSourceMap(b []byte) (SourceMap, error) {
	var entries []sourceMapEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	sm := make(SourceMap, len(entries))
	for _, e := range entries {
		if e.Unit == "" {
			return nil, fmt.Errorf("parse source map: entry without unit")
		}
		sm[e.Unit] = append(sm[e.Unit], e.Maps...)
	}
	return sm, nil
}

// LoadSourceMap reads a source map file.
func LoadSourceMap(path string) (SourceMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSourceMap(b)
}

// SaveSourceMap writes the file maps of run to path.
func SaveSourceMap(path string, run *coverage.Run) error {
	b, err := SourceMapOf(run).Marshal()
	if err != nil {
		return fmt.Errorf("marshal source map: %w", err)
	}
	return writeFile(path, b)
}
