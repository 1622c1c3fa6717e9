package main

import (
	"runtime/debug"

	"github.com/listling/listling/cmd"
)

// Version may be set at build time via -ldflags "-X main.Version=...".
// If left as "dev", we attempt to derive a version from Go build info.
var Version = "dev"

func main() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	cmd.SetVersion(Version)
	cmd.Execute()
}
