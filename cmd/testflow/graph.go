package main

import (
	"context"
	"fmt"

	"github.com/aretw0/testflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export the flow as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the flow. With --last-run the node
statuses of the most recent run report are overlaid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()
		ctx := context.Background()

		flow, err := b.Store.LoadFlow(ctx, args[0])
		if err != nil {
			return err
		}

		var overlay *graph.RunOverlay
		if lastRun, _ := cmd.Flags().GetBool("last-run"); lastRun {
			repo, err := b.Repository()
			if err != nil {
				return err
			}
			reports, err := repo.ListRunReports(ctx, args[0])
			if err != nil {
				return err
			}
			if len(reports) > 0 {
				overlay = graph.OverlayFromReport(&reports[len(reports)-1])
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(flow.FlowGraph, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("last-run", false, "Overlay the statuses of the latest run report")
}
