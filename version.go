// Package drover provides version information for the drover runtime.
package drover

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of this release.
const Version = "0.1.0"

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns version information. The commit is resolved from
// build metadata when the binary was built inside a git checkout.
func GetVersion() Info {
	commit := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				commit = s.Value
				break
			}
		}
	}
	return Info{
		Version:   Version,
		GitCommit: commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string.
func (i Info) String() string {
	return fmt.Sprintf("drover %s (commit %s, %s %s)",
		i.Version, i.GitCommit, i.GoVersion, i.Platform)
}
