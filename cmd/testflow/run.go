package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/testflow/internal/cli"
	"github.com/aretw0/testflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <flow-id>",
	Short: "Run a flow through the orchestrator",
	Long: `Starts a run of the flow, prints node results as they stream in and renders
the final report. The report is saved to the store. Exits non-zero when a node failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		env, _ := cmd.Flags().GetString("env")
		jsonMode, _ := cmd.Flags().GetBool("json")
		withGraph, _ := cmd.Flags().GetBool("graph")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = cli.Run(ctx, b, cli.RunOptions{
			FlowID:        args[0],
			EnvironmentID: env,
			JSON:          jsonMode,
			Graph:         withGraph,
			Color:         tui.IsTerminal(os.Stdout),
			Out:           cmd.OutOrStdout(),
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("env", "e", "", "Environment ID to run against")
	runCmd.Flags().Bool("json", false, "Print the report as JSON")
	runCmd.Flags().Bool("graph", false, "Print a Mermaid diagram with the run overlay")
}
