package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stemsplit",
		Short:         "Split songs into stems",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newSeparateCommand())
	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newSubmitCommand())

	return rootCmd
}
