package main

import (
	"context"
	"fmt"

	"github.com/aretw0/testflow/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow-id>",
	Short: "Check a flow for consistency",
	Long:  `Reports dangling edges, invalid handles, cycles, bad parents and invalid node configs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		flow, err := b.Store.LoadFlow(context.Background(), args[0])
		if err != nil {
			return err
		}

		issues := validator.Validate(flow.FlowGraph)
		out := cmd.OutOrStdout()
		for _, issue := range issues {
			fmt.Fprintln(out, issue.String())
		}
		if err := validator.Err(issues); err != nil {
			return err
		}
		fmt.Fprintln(out, "Flow is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
