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
//

package flags

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
)

const (
	defaultSaveInterval = time.Minute
	defaultProducer     = "coverage-agent"

	// SourceMapSuffix is appended to a report file name to name its source
	// map.
	SourceMapSuffix = ".sourcemap.yaml"
)

// Parse parses args, os.Args[1:] when called from main. It returns the
// selected command, e.g. "merge <output> <inputs>".
func Parse(args []string, options ...kong.Option) (Flags, string, error) {
	flags := Flags{}
	options = append([]kong.Option{
		kong.Name("coverage-agent"),
		kong.Description("Coverage instrumentation engine and report tooling."),
		kong.Vars{
			"default_parallel":      strconv.Itoa(runtime.GOMAXPROCS(0)),
			"default_save_interval": defaultSaveInterval.String(),
			"default_producer":      defaultProducer,
		},
	}, options...)
	parser, err := kong.New(&flags, options...)
	if err != nil {
		return Flags{}, "", err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return Flags{}, "", err
	}
	if err := flags.Validate(ctx.Command()); err != nil {
		return Flags{}, "", err
	}
	return flags, ctx.Command(), nil
}

type Flags struct {
	Log        FlagsLogs    `embed:"" prefix:"log-"`
	ConfigPath string       `default:"" help:"Path to config file."`
	Metrics    FlagsMetrics `embed:"" prefix:"metrics-"`

	Agent   FlagsAgent   `cmd:"" help:"Run the instrumentation engine, save its report periodically and on shutdown."`
	Merge   FlagsMerge   `cmd:"" help:"Merge coverage reports into one."`
	Dump    FlagsDump    `cmd:"" help:"Print a summary of a coverage report."`
	Select  FlagsSelect  `cmd:"" help:"Show the instrumentation strategy chosen for a unit."`
	Version FlagsVersion `cmd:"" help:"Show application version."`
}

type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1

	// Same as the code kong exits with on parse errors.
	ExitParseError ExitCode = 2
)

// Validate checks the flags of the selected command beyond what the tags
// express.
func (f Flags) Validate(command string) error {
	switch command {
	case "agent":
		if f.Agent.SaveInterval < time.Second {
			return fmt.Errorf("save interval %s is below 1s", f.Agent.SaveInterval)
		}
	case "merge <output> <inputs>":
		if f.Merge.Parallel < 0 {
			return errors.New("merge parallelism must not be negative")
		}
	case "select":
		switch f.Select.Mode {
		case "", "sampling", "tracing":
		default:
			return fmt.Errorf("unknown mode %q", f.Select.Mode)
		}
		if _, err := ParseOptionalBool(f.Select.Condy); err != nil {
			return fmt.Errorf("condy: %w", err)
		}
		if _, err := ParseOptionalBool(f.Select.TestTracking); err != nil {
			return fmt.Errorf("test tracking: %w", err)
		}
		for _, a := range f.Select.Access {
			if _, ok := AccessNames[a]; !ok {
				return fmt.Errorf("unknown access flag %q", a)
			}
		}
	}
	return nil
}

// AccessNames lists the access flags accepted by the select command.
var AccessNames = map[string]struct{}{
	"public":     {},
	"final":      {},
	"interface":  {},
	"abstract":   {},
	"synthetic":  {},
	"annotation": {},
	"enum":       {},
}

// ParseOptionalBool parses s, returning nil for the empty string.
func ParseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FlagsLogs provides logging configuration flags.
type FlagsLogs struct {
	Level  string `default:"info"   enum:"error,warn,info,debug" help:"Log level."`
	Format string `default:"logfmt" enum:"logfmt,json"           help:"Configure if structured logging as JSON or as logfmt"`
}

// FlagsMetrics provides the metrics endpoint flags.
type FlagsMetrics struct {
	Address string `default:"" help:"Address to serve /metrics on while the agent runs. Leave empty to disable."`
}

// FlagsAgent provides the flags of the agent command.
type FlagsAgent struct {
	ReportPath    string        `required:""                        help:"Report file to save the run to."`
	SourceMap     bool          `default:"false"                    help:"Save the source map next to the report."`
	Append        bool          `default:"false"                    help:"Merge the counters of an existing report into the run on start."`
	SaveInterval  time.Duration `default:"${default_save_interval}" help:"How often to save the report while running."`
	Producer      string        `default:"${default_producer}"      help:"Producer name written into the report."`
	MaxRetryDelay time.Duration `default:"10s"                      help:"Maximum time spent retrying a failing save."`
}

// SourceMapPath returns the source map file of the report, empty if none is
// written.
func (f FlagsAgent) SourceMapPath() string {
	if !f.SourceMap {
		return ""
	}
	return f.ReportPath + SourceMapSuffix
}

// FlagsMerge provides the flags of the merge command.
type FlagsMerge struct {
	Output      string        `arg:""                        help:"Report file to write."`
	Inputs      []string      `arg:""                        help:"Report files to merge, earlier ones win on conflicts."`
	SourceMaps  bool          `default:"false"               help:"Read and write source maps next to the reports."`
	Compression string        `default:"zstd"                enum:"none,zstd"                                              help:"Compression of the merged report."`
	Parallel    int           `default:"${default_parallel}" help:"Number of reports loaded at once, 0 for no limit."`
	Producer    string        `default:"${default_producer}" help:"Producer name written into the report."`
	Timeout     time.Duration `default:"5m"                  help:"Give up when merging takes longer."`
}

// FlagsDump provides the flags of the dump command.
type FlagsDump struct {
	File      string `arg:""      help:"Report file to read."              type:"existingfile"`
	SourceMap string `default:""  help:"Source map file to apply."`
	Unit      string `default:""  help:"Only print this unit, with its covered lines."`
}

// FlagsSelect provides the flags of the select command. Values not given
// on the command line come from the config file.
type FlagsSelect struct {
	Name          string   `required:""                help:"Dotted unit name."`
	FormatVersion string   `default:"52"               help:"Format version of the unit as major[.minor]."`
	Super         string   `default:"java/lang/Object" help:"Super type in internal form."`
	Access        []string `help:"Access flags of the unit: public, final, interface, abstract, synthetic, annotation or enum."`
	Annotations   []string `help:"Annotation descriptors of the unit."`
	Mode          string   `default:""                 help:"Counting mode (sampling or tracing), overrides the config."`
	Condy         string   `default:""                 help:"Allow constant-dynamic counter access (true or false), overrides the config."`
	TestTracking  string   `default:""                 help:"Enable test tracking (true or false), overrides the config."`
	TrackingMode  string   `default:""                 help:"Test tracking mode (array or class_data), overrides the config."`
	ClassFile     string   `default:""                 help:"Compiled unit file; its fingerprint is printed with the decision."`
}

type FlagsVersion struct{}
