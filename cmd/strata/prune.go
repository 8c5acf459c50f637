package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run one memory retention pass",
	Long:  `Removes memory entries older than the retention window whose importance is below the threshold.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, topologyPath, debug := commonFlags(cmd)
		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return cli.Prune(ctx, configPath, topologyPath, debug, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
