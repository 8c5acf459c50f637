package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Print the topology as a Mermaid flowchart",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, topologyPath, _ := commonFlags(cmd)
		if topologyPath == "" && len(args) > 0 {
			topologyPath = args[0]
		}
		return cli.Graph(configPath, topologyPath, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
