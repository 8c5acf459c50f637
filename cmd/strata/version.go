package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of strata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "strata version %s\n", strata.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
