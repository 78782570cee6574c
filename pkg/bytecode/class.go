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

// Package bytecode models the parts of a compiled unit the instrumentation
// engine looks at: the class header and the instruction stream of every
// method, delivered through MethodVisitor chains.
package bytecode

import (
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Access is a set of access and property flags.
type Access uint16

const (
	AccPublic     Access = 0x0001
	AccPrivate    Access = 0x0002
	AccProtected  Access = 0x0004
	AccStatic     Access = 0x0008
	AccFinal      Access = 0x0010
	AccInterface  Access = 0x0200
	AccAbstract   Access = 0x0400
	AccSynthetic  Access = 0x1000
	AccAnnotation Access = 0x2000
	AccEnum       Access = 0x4000
)

// Has reports whether all flags of f are set.
func (a Access) Has(f Access) bool { return a&f == f }

// ObjectDesc is the descriptor of the root object type.
const ObjectDesc = "Ljava/lang/Object;"

// ClassInfo is the header of a compiled unit.
type ClassInfo struct {
	// Name is the dotted name, e.g. "org.example.Foo$Bar".
	Name string
	// SuperName and Interfaces use the internal, slash separated form.
	SuperName   string
	Interfaces  []string
	Access      Access
	Version     *semver.Version
	SourceFile  string
	Annotations []string
}

// InternalName returns the slash separated form of the class name.
func (c ClassInfo) InternalName() string { return InternalName(c.Name) }

// HasAnnotation reports whether the class carries the annotation with the
// given type descriptor.
func (c ClassInfo) HasAnnotation(desc string) bool {
	return slices.Contains(c.Annotations, desc)
}

// Method is a method header and its recorded body.
type Method struct {
	Access Access
	Name   string
	Desc   string
	Body   []Event
}

// IsConstructor reports whether m is an instance initializer.
func (m Method) IsConstructor() bool { return m.Name == "<init>" }

// Accept replays the body on v and finishes with VisitEnd.
func (m Method) Accept(v MethodVisitor) {
	for _, e := range m.Body {
		e.Accept(v)
	}
	v.VisitEnd()
}

// ClassName converts an internal name to the dotted form.
func ClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName converts a dotted name to the internal form.
func InternalName(class string) string {
	return strings.ReplaceAll(class, ".", "/")
}

// FormatVersion returns the version of a class file format as a semantic
// version, major.minor.0.
func FormatVersion(major, minor uint16) *semver.Version {
	return semver.New(uint64(major), uint64(minor), 0, "", "")
}
