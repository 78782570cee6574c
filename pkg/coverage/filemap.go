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

package coverage

import "fmt"

// FileMap maps lines of a unit whose code was generated from another source
// (inlined functions, expanded macros) back to that source.
type FileMap struct {
	ClassName string    `yaml:"class"`
	FileName  string    `yaml:"file"`
	Lines     []LineMap `yaml:"lines"`
}

// LineMap maps a range of synthetic lines to a range of source lines.
type LineMap struct {
	MappedStart int `yaml:"mapped_start"`
	MappedEnd   int `yaml:"mapped_end"`
	SourceStart int `yaml:"source_start"`
	SourceEnd   int `yaml:"source_end"`
}

// Source returns the source line of a synthetic one, if it is mapped.
func (m FileMap) Source(mapped int) (int, bool) {
	for _, l := range m.Lines {
		if mapped < l.MappedStart || mapped > l.MappedEnd {
			continue
		}
		src := l.SourceStart + mapped - l.MappedStart
		if src > l.SourceEnd {
			src = l.SourceEnd
		}
		return src, true
	}
	return 0, false
}

func (m FileMap) String() string {
	return fmt.Sprintf("class name: %s, file: %s, %d line ranges", m.ClassName, m.FileName, len(m.Lines))
}
