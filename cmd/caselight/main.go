// caselight is the unified command-line entry point: API server, one-shot
// evaluations, risk lookups, and schema migrations.
package main

import (
	"os"

	"github.com/caselight/caselight/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	os.Exit(cli.Execute())
}
