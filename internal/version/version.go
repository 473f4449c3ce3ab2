// Package version reports build information for the cot binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/example/cotflow/internal/version.Commit=...".
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "cot dev (commit: abc1234, built: ...)". When no commit was
// stamped, the VCS revision recorded by the Go toolchain is used.
func String() string {
	return fmt.Sprintf("cot dev (commit: %s, built: %s)", shortCommit(resolveCommit()), resolveBuildTime())
}

func resolveCommit() string {
	if Commit != "unknown" && Commit != "" {
		return Commit
	}
	if rev := buildSetting("vcs.revision"); rev != "" {
		return rev
	}
	return "unknown"
}

func resolveBuildTime() string {
	if BuildTime != "unknown" && BuildTime != "" {
		return BuildTime
	}
	if t := buildSetting("vcs.time"); t != "" {
		return t
	}
	return "unknown"
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
