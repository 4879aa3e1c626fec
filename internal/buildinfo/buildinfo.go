// Package buildinfo carries version information stamped at link time.
package buildinfo

import "runtime/debug"

// Version is set with -ldflags "-X github.com/micro-sensor/sitewhere/internal/buildinfo.Version=...".
var Version = ""

// String returns Version, falling back to the module version recorded in
// the binary, or "dev".
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
