package replicator

import (
	"runtime"
	"runtime/debug"
)

// Version is the current version of the redis-replicator library.
const Version = "0.1.0"

// GitCommit is the git commit hash (set by build flags)
var GitCommit string

// BuildTime is the build timestamp (set by build flags)
var BuildTime string

// VersionInfo returns the library version, the Go version and, when
// known, the commit and build time. Without build flags the commit and time
// come from the VCS stamp of the binary.
func VersionInfo() map[string]string {
	info := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}

	commit, buildTime := GitCommit, BuildTime
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && buildTime == "":
				buildTime = s.Value
			}
		}
	}
	if commit != "" {
		info["commit"] = commit
	}
	if buildTime != "" {
		info["buildTime"] = buildTime
	}
	return info
}
