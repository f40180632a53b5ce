// Package version exposes build identification for the dbsunset binary.
//
// Version, Commit and Date are injected at build time via -ldflags. When the
// binary is built without them (go install, tests), InitBinaryVersion fills
// what it can from the embedded module build info.
package version

import (
	"runtime/debug"
)

var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp in RFC3339.
	Date = "unknown"
)

// InitBinaryVersion backfills Version, Commit and Date from the Go build info
// when they were not injected at link time.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}
