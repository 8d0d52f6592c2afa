// Package main is the entry point for mhrwdemo, a small CLI that
// exercises the core engine end to end against a toy 1-D Gaussian
// target: it is external collaborator glue, per spec.md §1, never a
// dependency of the core packages under pkg/.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sampleforge/mhrw/cmd/mhrwdemo/commands"
	"github.com/sampleforge/mhrw/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	root := &cobra.Command{
		Use:           "mhrwdemo",
		Short:         "Demonstration CLI for the parallel Metropolis-Hastings random-walk engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(commands.NewRunCommand())
	root.AddCommand(commands.NewVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mhrwdemo:", err)
		os.Exit(1)
	}
}
