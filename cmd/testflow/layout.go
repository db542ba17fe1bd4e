package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/layout"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout <flow-id>",
	Short: "Arrange a flow with the layered auto-layout",
	Long:  `Computes top-to-bottom positions for every top-level node and saves them, unless --dry-run is set.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()
		ctx := context.Background()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var positions map[string]domain.Position
		if dryRun {
			flow, err := b.Store.LoadFlow(ctx, args[0])
			if err != nil {
				return err
			}
			positions = layout.Compute(flow.Nodes, flow.Edges)
		} else {
			ed, err := testflow.Open(ctx, b.Store, args[0], b.EditorOptions()...)
			if err != nil {
				return err
			}
			positions = ed.AutoLayout()
			if err := ed.Close(ctx); err != nil {
				return fmt.Errorf("save layout: %w", err)
			}
		}

		ids := make([]string, 0, len(positions))
		for id := range positions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := cmd.OutOrStdout()
		for _, id := range ids {
			p := positions[id]
			fmt.Fprintf(out, "%-24s x=%-8.0f y=%.0f\n", id, p.X, p.Y)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().Bool("dry-run", false, "Print positions without saving")
}
