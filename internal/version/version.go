// Package version provides build version information for amdpack.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set by the linker: -X github.com/albertocavalcante/amdpack/internal/version.Version=...
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the version line printed by "amdpack version".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", resolved(), Commit, Date)
}

// resolved falls back to the module version for "go install" builds.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
