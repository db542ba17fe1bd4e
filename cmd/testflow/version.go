package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/testflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of testflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "testflow version %s\n", strings.TrimSpace(testflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
