// Package version reports build information of the gitrecommender binary.
package version

import (
	"fmt"
	"runtime/debug"
)

const unknown = "unknown"

// Set at build time with -ldflags "-X github.com/Sumatoshi-tech/gitrecommender/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills unset fields from the module build info, so
// `go install`ed binaries report something useful.
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
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String formats the version line printed by the version command.
func String() string {
	return fmt.Sprintf("gitrecommender %s (commit: %s, built: %s)", Version, Commit, Date)
}
