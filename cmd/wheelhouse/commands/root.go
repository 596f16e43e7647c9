// Package commands wires wheelhouse's cobra command tree, adapted from the
// teacher's bb/cmd/bb/commands package: a single persistent RootCmd that
// subcommands register themselves onto via init().
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wheelhouse/wheelhouse/internal/version"
)

var RootCmd = &cobra.Command{
	Use:     "wheelhouse",
	Short:   "wheelhouse installs packages by building them from source",
	Version: version.String(),
}

// Execute runs the command tree. Called by main.main(); it only needs to
// run once.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
