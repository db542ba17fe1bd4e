package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/testflow/pkg/domain"
)

// LogHooks logs the lifecycle of runs.
func LogHooks(logger *slog.Logger) domain.RunHooks {
	return domain.RunHooks{
		OnRunStart: func(_ context.Context, flowID string) {
			logger.Info("run_start", "flow_id", flowID)
		},
		OnEvent: func(_ context.Context, ev *domain.RunEvent) {
			logger.Debug("run_event", "type", ev.Type, "node_id", ev.NodeID, "edge_id", ev.EdgeID)
		},
		OnFrameDropped: func(_ context.Context, reason string) {
			logger.Warn("frame_dropped", "reason", reason)
		},
		OnRunFinish: func(_ context.Context, flowID string, report *domain.RunReport, err error) {
			if err != nil {
				logger.Error("run_finish", "flow_id", flowID, "err", err)
				return
			}
			if report != nil {
				logger.Info("run_finish", "flow_id", flowID, "status", report.Status,
					"passed", report.Summary.PassedCount, "failed", report.Summary.FailedCount)
			}
		},
	}
}

// Combine returns hooks that call each of the given hooks in order.
func Combine(all ...domain.RunHooks) domain.RunHooks {
	return domain.RunHooks{
		OnRunStart: func(ctx context.Context, flowID string) {
			for _, h := range all {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, flowID)
				}
			}
		},
		OnEvent: func(ctx context.Context, ev *domain.RunEvent) {
			for _, h := range all {
				if h.OnEvent != nil {
					h.OnEvent(ctx, ev)
				}
			}
		},
		OnFrameDropped: func(ctx context.Context, reason string) {
			for _, h := range all {
				if h.OnFrameDropped != nil {
					h.OnFrameDropped(ctx, reason)
				}
			}
		},
		OnRunFinish: func(ctx context.Context, flowID string, report *domain.RunReport, err error) {
			for _, h := range all {
				if h.OnRunFinish != nil {
					h.OnRunFinish(ctx, flowID, report, err)
				}
			}
		},
	}
}
