// Command jobsuite runs resumable suites of jobs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jdziat/jobsuite/internal/cmd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "jobsuite:", err)
		os.Exit(1)
	}
}
