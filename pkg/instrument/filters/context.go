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

// Package filters holds method visitors that recognize compiler generated
// code and retract the coverage sites recorded for it.
package filters

import "github.com/parca-dev/coverage-agent/pkg/bytecode"

// Context is the instrumentation pass of one method, as seen by a filter.
// Filters sit in front of the instrumenter: they forward an instruction
// first and retract the site it produced afterwards.
type Context interface {
	// ClassName returns the dotted name of the unit being instrumented.
	ClassName() string
	// HasLine reports whether the unit already has counters for line.
	HasLine(line int) bool
	// RemoveLine drops the counters of line.
	RemoveLine(line int)
	// IgnoreLastBranch retracts the most recently added branch site.
	IgnoreLastBranch()
	// IgnoreLastSwitch retracts the most recently added switch site.
	IgnoreLastSwitch()
}

const kotlinMetadataDesc = "Lkotlin/Metadata;"

// IsKotlinClass reports whether the unit was produced by the Kotlin compiler.
func IsKotlinClass(class bytecode.ClassInfo) bool {
	return class.HasAnnotation(kotlinMetadataDesc)
}
