package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/cli"
	"github.com/aretw0/strata/internal/presentation/tui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Submit one task and print the outcome",
	Long: `Starts the network, submits the task at the highest-layer entry neuron,
waits for every branch to finish and prints the terminal results and failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, topologyPath, debug := commonFlags(cmd)
		neuron, _ := cmd.Flags().GetString("neuron")
		mode, _ := cmd.Flags().GetString("mode")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		jsonMode, _ := cmd.Flags().GetBool("json")
		plain, _ := cmd.Flags().GetBool("plain")
		quiet, _ := cmd.Flags().GetBool("quiet")
		withGraph, _ := cmd.Flags().GetBool("graph")

		if !jsonMode && !quiet {
			tui.PrintBanner(cmd.OutOrStdout(), strata.Version)
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		return cli.Execute(ctx, cli.RunOptions{
			ConfigPath:   configPath,
			TopologyPath: topologyPath,
			Content:      strings.Join(args, " "),
			NeuronID:     neuron,
			Mode:         mode,
			Timeout:      timeout,
			JSON:         jsonMode,
			Plain:        plain,
			Graph:        withGraph,
			Debug:        debug,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("neuron", "", "Entry neuron to submit to (default: highest layer)")
	runCmd.Flags().String("mode", "", "Backend mode override: mock, real, hybrid or auto")
	runCmd.Flags().Duration("timeout", 0, "Overall deadline of the request (e.g. 90s)")
	runCmd.Flags().Bool("json", false, "Print the outcome as JSON")
	runCmd.Flags().Bool("plain", false, "Print markdown without terminal styling")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	runCmd.Flags().Bool("graph", false, "Append a Mermaid flowchart of the request")
}
