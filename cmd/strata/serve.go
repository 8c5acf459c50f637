package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/cli"
	"github.com/aretw0/strata/internal/presentation/tui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the network as a long-lived process",
	Long: `Starts the network and serves health, spend, topology, a live event
stream and the Prometheus metrics. Remote signals are received when the
transport is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, topologyPath, debug := commonFlags(cmd)
		addr, _ := cmd.Flags().GetString("addr")

		tui.PrintBanner(cmd.OutOrStdout(), strata.Version)
		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		return cli.Serve(ctx, cli.ServeOptions{
			ConfigPath:   configPath,
			TopologyPath: topologyPath,
			Addr:         addr,
			Debug:        debug,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides metrics.addr)")
}
