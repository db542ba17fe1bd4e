package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/testflow/internal/presentation/tui"
	httpAdapter "github.com/aretw0/testflow/pkg/adapters/http"
	"github.com/aretw0/testflow/pkg/adapters/socket"
	"github.com/aretw0/testflow/pkg/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow API server",
	Long: `Serves the flow REST API with SSE run relay, the WebSocket run relay at /ws
and Prometheus metrics, either on /metrics or on a dedicated --metrics-addr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		repo, err := b.Repository()
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		metricsAddr := cfg.Server.MetricsAddr
		if cmd.Flags().Changed("metrics-addr") {
			metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		}
		logger := b.Logger

		metrics := observability.NewMetrics()
		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if b.Locker != nil {
			opts = append(opts, httpAdapter.WithLocker(b.Locker))
		}
		if b.Orchestrator != nil {
			orch := observability.Instrument(b.Orchestrator,
				observability.Combine(metrics.Hooks(), observability.LogHooks(logger)))
			opts = append(opts,
				httpAdapter.WithOrchestrator(orch),
				httpAdapter.WithRunSocket(socket.NewHandler(orch, logger)),
			)
		}
		if metricsAddr == "" {
			opts = append(opts, httpAdapter.WithMetricsHandler(metrics.Handler()))
		}

		servers := []*http.Server{{
			Addr:              addr,
			Handler:           httpAdapter.NewHandler(repo, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			servers = append(servers, &http.Server{
				Addr:              metricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		if tui.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)

		for _, srv := range servers {
			g.Go(func() error {
				logger.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server %s: %w", srv.Addr, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, err)
					_ = srv.Close()
				}
			}
			logger.Info("server stopped")
			return errors.Join(errs...)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().String("metrics-addr", "", "Serve metrics on a separate address")
}
