package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records run activity as Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runsActive   prometheus.Gauge
	events       *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	dropped      prometheus.Counter

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates collectors registered on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testflow_runs_total",
				Help: "Total number of finished runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testflow_run_duration_seconds",
			Help:    "Wall time of runs from stream open to terminal event",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testflow_runs_active",
			Help: "Runs currently streaming",
		}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testflow_run_events_total",
				Help: "Run events received by type",
			},
			[]string{"type"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "testflow_node_duration_seconds",
				Help: "Node execution time reported by the orchestrator",
			},
			[]string{"node_type", "status"},
		),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testflow_frames_dropped_total",
			Help: "Stream frames that could not be decoded",
		}),
		started: make(map[string]time.Time),
	}
	m.registry.MustRegister(m.runs, m.runDuration, m.runsActive, m.events, m.nodeDuration, m.dropped)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns run hooks feeding the collectors.
func (m *Metrics) Hooks() domain.RunHooks {
	return domain.RunHooks{
		OnRunStart: func(_ context.Context, flowID string) {
			m.runsActive.Inc()
			m.mu.Lock()
			m.started[flowID] = time.Now()
			m.mu.Unlock()
		},
		OnEvent: func(_ context.Context, ev *domain.RunEvent) {
			m.events.WithLabelValues(string(ev.Type)).Inc()
			if ev.Type == domain.EventNodeResult {
				m.nodeDuration.WithLabelValues(string(ev.NodeType), ev.Status).
					Observe(ev.ElapsedMs / 1000)
			}
		},
		OnFrameDropped: func(context.Context, string) {
			m.dropped.Inc()
		},
		OnRunFinish: func(_ context.Context, flowID string, report *domain.RunReport, err error) {
			m.runsActive.Dec()
			m.mu.Lock()
			start, ok := m.started[flowID]
			delete(m.started, flowID)
			m.mu.Unlock()
			if ok {
				m.runDuration.Observe(time.Since(start).Seconds())
			}
			m.runs.WithLabelValues(outcome(report, err)).Inc()
		},
	}
}

func outcome(report *domain.RunReport, err error) string {
	switch {
	case err != nil:
		return "error"
	case report == nil:
		return "aborted"
	default:
		return string(report.Status)
	}
}
