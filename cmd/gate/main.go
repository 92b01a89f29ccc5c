package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hugo-lorenzo-mato/stability-gate/cmd/gate/cmd"
)

// Version information - set by goreleaser at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)

	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrRejected) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
