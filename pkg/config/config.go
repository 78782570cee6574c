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

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/prometheus/model/relabel"
	"gopkg.in/yaml.v3"
)

var ErrEmptyConfig = errors.New("empty config")

const (
	ModeSampling = "sampling"
	ModeTracing  = "tracing"

	TrackingArray     = "array"
	TrackingClassData = "class_data"

	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config holds the instrumentation settings of the agent.
type Config struct {
	// Mode is either "sampling" (line hits only) or "tracing" (lines,
	// branches and switches).
	Mode         string `yaml:"mode,omitempty"`
	CondyEnabled bool   `yaml:"condy_enabled,omitempty"`
	TestTracking bool   `yaml:"test_tracking,omitempty"`
	TrackingMode string `yaml:"tracking_mode,omitempty"`

	IgnorePrivateConstructorOfUtilClass bool `yaml:"ignore_private_constructor_of_util_class,omitempty"`
	CalculateSource                     bool `yaml:"calculate_source,omitempty"`

	// Unit names are matched against the anchored expressions; an exclude
	// match wins, an empty include list accepts every unit.
	Exclude []relabel.Regexp `yaml:"exclude,omitempty"`
	Include []relabel.Regexp `yaml:"include,omitempty"`

	Report ReportConfig `yaml:"report,omitempty"`
}

// ReportConfig controls how coverage data is persisted.
type ReportConfig struct {
	Compression string `yaml:"compression,omitempty"`
	SourceMap   bool   `yaml:"source_map,omitempty"`
}

func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<error creating config string: %s>", err)
	}
	return string(b)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeSampling
	}
	if c.Report.Compression == "" {
		c.Report.Compression = CompressionZstd
	}
}

// Validate checks that all enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSampling:
		if c.TestTracking {
			return errors.New("test tracking requires tracing mode")
		}
	case ModeTracing:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.TrackingMode {
	case "", TrackingArray, TrackingClassData:
	default:
		return fmt.Errorf("unknown tracking mode %q", c.TrackingMode)
	}
	switch c.Report.Compression {
	case CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression %q", c.Report.Compression)
	}
	return nil
}

// Load parses the YAML input b into a Config.
func Load(b []byte) (*Config, error) {
	if len(b) == 0 {
		return nil, ErrEmptyConfig
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return cfg, nil
}
