package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/pkg/adapters/mcp"
	"github.com/aretw0/testflow/pkg/observability"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the flow store as MCP tools so agents can inspect, edit, lay out
and run flows.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		repo, err := b.Repository()
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		logger := b.Logger

		opts := []mcp.Option{mcp.WithLogger(logger)}
		if b.Locker != nil {
			opts = append(opts, mcp.WithLocker(b.Locker), mcp.WithEditorOptions(testflow.WithLocker(b.Locker)))
		}
		if b.Orchestrator != nil {
			opts = append(opts, mcp.WithOrchestrator(observability.Instrument(b.Orchestrator, observability.LogHooks(logger))))
		}
		srv := mcp.NewServer(repo, opts...)

		switch transport {
		case "stdio":
			// Logs go to stderr so they never corrupt JSON-RPC on stdout.
			logger.Info("starting MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, port); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
