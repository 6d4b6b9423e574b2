// Package version exposes the build version of rasterclip.
package version

import "runtime/debug"

// Set at build time with
// -ldflags "-X github.com/rshade/rasterclip/pkg/version.version=v1.2.3".
//
//nolint:gochecknoglobals // Overridden by the linker.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the build version. Untagged builds fall back to the
// module version recorded by the Go toolchain, then to "dev".
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// GetGitCommit returns the commit the binary was built from, if known.
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns the build timestamp, if known.
func GetBuildDate() string {
	return buildDate
}
