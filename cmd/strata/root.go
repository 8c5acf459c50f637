package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata runs a layered network of AI neurons",
	Long: `Strata routes tasks down a hierarchy of neurons (L9 vision to L1 reflex)
and carries failures back up as gradients the network learns from.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the strata configuration file")
	rootCmd.PersistentFlags().StringP("topology", "t", "", "Topology file or Loam directory (overrides the config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every signal at debug level")
}

// commonFlags reads the persistent flags.
func commonFlags(cmd *cobra.Command) (configPath, topologyPath string, debug bool) {
	configPath, _ = cmd.Flags().GetString("config")
	topologyPath, _ = cmd.Flags().GetString("topology")
	debug, _ = cmd.Flags().GetBool("debug")
	return configPath, topologyPath, debug
}
