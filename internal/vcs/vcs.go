package vcs

import (
	"fmt"
	"runtime/debug"
)

// Version returns the module version, or the VCS revision for development builds.
func Version() string {
	var (
		revision string
		modified bool
	)

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	if revision == "" {
		return "devel"
	}

	if modified {
		return fmt.Sprintf("%s-dirty", revision)
	}

	return revision
}
