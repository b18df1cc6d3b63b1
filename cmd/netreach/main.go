// Command netreach is the entrypoint for the netreach network scanner.
package main

import (
	"github.com/anstrom/netreach/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
