// Package misc keeps program identity values which are set at link time.
package misc

import (
	"runtime/debug"
)

var (
	appName = "web2epub"
	version = "dev"
	gitHash = ""
)

// GetAppName returns name of the program, used for loggers, temporary files
// and reports.
func GetAppName() string {
	return appName
}

// GetVersion returns program version. When not set by linker it falls back
// to module version recorded in build info.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

// GetGitHash returns VCS revision the program was built from.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				if len(s.Value) > 8 {
					return s.Value[:8]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}
