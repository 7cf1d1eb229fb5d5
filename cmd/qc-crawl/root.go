package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "qc-crawl",
		Short:         "Media QC asset crawler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newSignoffCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
