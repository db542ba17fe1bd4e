package runsync

import (
	"log/slog"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
)

// DefaultActiveWindow is how long an edge pulses after edge_active.
const DefaultActiveWindow = 800 * time.Millisecond

// Option configures the Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.RunHooks) Option {
	return func(s *Synchronizer) {
		s.hooks = hooks
	}
}

// WithActiveWindow sets how long an edge stays active after edge_active.
func WithActiveWindow(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.activeWindow = d
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// EnvironmentNamer resolves the display name of an environment id.
type EnvironmentNamer func(environmentID string) string

// WithEnvironmentNamer fills RunReport.EnvironmentName from the run's
// environment id. Without it the name is left empty.
func WithEnvironmentNamer(fn EnvironmentNamer) Option {
	return func(s *Synchronizer) {
		s.envName = fn
	}
}
