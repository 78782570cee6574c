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
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/parca-dev/coverage-agent/flags"
	"github.com/parca-dev/coverage-agent/pkg/bytecode"
	"github.com/parca-dev/coverage-agent/pkg/config"
	"github.com/parca-dev/coverage-agent/pkg/hash"
	"github.com/parca-dev/coverage-agent/pkg/instrument"
)

var accessFlags = map[string]bytecode.Access{
	"public":     bytecode.AccPublic,
	"final":      bytecode.AccFinal,
	"interface":  bytecode.AccInterface,
	"abstract":   bytecode.AccAbstract,
	"synthetic":  bytecode.AccSynthetic,
	"annotation": bytecode.AccAnnotation,
	"enum":       bytecode.AccEnum,
}

// selectConfig applies the command line overrides to a copy of cfg.
func selectConfig(f flags.FlagsSelect, cfg *config.Config) (*config.Config, error) {
	c := *cfg
	if f.Mode != "" {
		c.Mode = f.Mode
	}
	if f.TrackingMode != "" {
		c.TrackingMode = f.TrackingMode
	}
	condy, err := flags.ParseOptionalBool(f.Condy)
	if err != nil {
		return nil, err
	}
	if condy != nil {
		c.CondyEnabled = *condy
	}
	tracking, err := flags.ParseOptionalBool(f.TestTracking)
	if err != nil {
		return nil, err
	}
	if tracking != nil {
		c.TestTracking = *tracking
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func selectClass(f flags.FlagsSelect) (bytecode.ClassInfo, error) {
	v, err := semver.NewVersion(f.FormatVersion)
	if err != nil {
		return bytecode.ClassInfo{}, fmt.Errorf("invalid format version %q: %w", f.FormatVersion, err)
	}
	class := bytecode.ClassInfo{
		Name:        f.Name,
		SuperName:   f.Super,
		Version:     v,
		Annotations: f.Annotations,
	}
	for _, a := range f.Access {
		acc, ok := accessFlags[a]
		if !ok {
			return bytecode.ClassInfo{}, fmt.Errorf("unknown access flag %q", a)
		}
		class.Access |= acc
	}
	return class, nil
}

func runSelect(stdout io.Writer, f flags.FlagsSelect, cfg *config.Config) error {
	c, err := selectConfig(f, cfg)
	if err != nil {
		return err
	}
	opts, names, err := instrument.OptionsFromConfig(c)
	if err != nil {
		return err
	}
	class, err := selectClass(f)
	if err != nil {
		return err
	}

	if !names.Accept(class.Name) {
		_, err := fmt.Fprintf(stdout, "unit: %s\nstrategy: %s\nexcluded by name\n", class.Name, instrument.StrategySkip)
		return err
	}

	d := instrument.Select(opts, class)
	tracking := "none"
	if d.Tracking != nil {
		tracking = d.Tracking.Name()
	}
	_, err = fmt.Fprintf(stdout, "unit: %s\nversion: %s\nstrategy: %s\naccess: %s\ntest tracking: %s\nfilter private constructor: %t\n",
		class.Name, class.Version, d.Strategy, d.Access, tracking, d.FilterPrivateConstructor)
	if err != nil {
		return err
	}
	if d.SkippedBy != "" {
		if _, err := fmt.Fprintf(stdout, "skipped by: %s\n", d.SkippedBy); err != nil {
			return err
		}
	}
	if f.ClassFile == "" {
		return nil
	}
	fp, err := hash.File(os.DirFS(filepath.Dir(f.ClassFile)), filepath.Base(f.ClassFile))
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", f.ClassFile, err)
	}
	_, err = fmt.Fprintf(stdout, "fingerprint: %016x\n", fp)
	return err
}
