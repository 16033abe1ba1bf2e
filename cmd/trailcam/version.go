package main

import "runtime/debug"

// Build metadata, set via -ldflags at release time:
//
//	go build -ldflags "-X main.version=v1.2.0"
var version = "dev"

// versionString prefers the linker-set version and falls back to the module
// version recorded in the build info, which covers go install builds.
func versionString() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return version
}
