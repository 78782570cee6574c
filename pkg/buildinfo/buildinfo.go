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

package buildinfo

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// BuildInfo is the VCS and platform information embedded by the Go
// toolchain.
type BuildInfo struct {
	GoVersion, GoArch, GoOs, VcsRevision, VcsTime string
	VcsModified                                   bool
}

// FetchBuildInfo reads the build information of the running binary.
func FetchBuildInfo() (*BuildInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("can't read the build info")
	}
	return fromSettings(bi.GoVersion, bi.Settings), nil
}

func fromSettings(goVersion string, settings []debug.BuildSetting) *BuildInfo {
	info := &BuildInfo{GoVersion: goVersion}
	for _, setting := range settings {
		switch setting.Key {
		case "GOARCH":
			info.GoArch = setting.Value
		case "GOOS":
			info.GoOs = setting.Value
		case "vcs.revision":
			info.VcsRevision = setting.Value
		case "vcs.time":
			info.VcsTime = setting.Value
		case "vcs.modified":
			info.VcsModified = setting.Value == "true"
		}
	}
	return info
}

// Revision returns the VCS revision, suffixed with "-dirty" for modified
// trees, or "unknown".
func (b *BuildInfo) Revision() string {
	if b.VcsRevision == "" {
		return "unknown"
	}
	if b.VcsModified {
		return b.VcsRevision + "-dirty"
	}
	return b.VcsRevision
}

func (b *BuildInfo) String() string {
	return fmt.Sprintf("revision %s (%s), %s %s/%s", b.Revision(), b.VcsTime, b.GoVersion, b.GoOs, b.GoArch)
}
