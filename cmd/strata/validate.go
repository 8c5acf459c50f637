package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a topology",
	Long:  `Loads the topology and checks the adjacency rules without starting any neuron.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, topologyPath, _ := commonFlags(cmd)
		if topologyPath == "" && len(args) > 0 {
			topologyPath = args[0]
		}
		return cli.Validate(configPath, topologyPath, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
