// Package version provides build-time version information.
package version

import "runtime/debug"

// version is set at build time via -ldflags "-X dolphinenv/internal/version.version=...".
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the release version.
func String() string {
	return version
}

// Full returns the version followed by the VCS revision the toolchain
// stamped into the binary, when there is one.
func Full() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	return withRevision(version, info.Settings)
}

func withRevision(v string, settings []debug.BuildSetting) string {
	var (
		rev   string
		dirty bool
	)
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return v + " (" + rev + ")"
}
