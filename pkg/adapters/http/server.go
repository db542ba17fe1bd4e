// Package http exposes flow storage and run streaming over REST and SSE, and
// provides the matching client used by the editor against a remote backend.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/testflow"
	graphstore "github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/internal/validator"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/aretw0/testflow/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves the flow API backed by a repository and an orchestrator.
type Server struct {
	Store        ports.FlowRepository
	Orchestrator ports.Orchestrator
	Streams      *StreamManager
	Sessions     *session.Manager

	logger  *slog.Logger
	locker  ports.DistributedLocker
	metrics http.Handler
	socket  http.Handler

	mu      sync.Mutex
	running map[string]bool
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom structured logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithOrchestrator enables POST /{id}/run.
func WithOrchestrator(o ports.Orchestrator) Option {
	return func(s *Server) {
		s.Orchestrator = o
	}
}

// WithLocker serializes graph writes across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(s *Server) {
		s.locker = l
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRunSocket mounts a WebSocket run relay at /ws.
func WithRunSocket(h http.Handler) Option {
	return func(s *Server) {
		s.socket = h
	}
}

// NewServer creates a server over store.
func NewServer(store ports.FlowRepository, opts ...Option) *Server {
	s := &Server{
		Store:   store,
		logger:  logging.NewNop(),
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	sessionOpts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(s.locker))
	}
	s.Sessions = session.NewManager(store, sessionOpts...)
	return s
}

// NewHandler creates the HTTP handler for store.
func NewHandler(store ports.FlowRepository, opts ...Option) http.Handler {
	return NewServer(store, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.socket != nil {
		r.Get("/ws", s.socket.ServeHTTP)
	}

	r.Route("/api/v1/test-flows", func(r chi.Router) {
		r.Get("/", s.ListFlows)
		r.Post("/", s.CreateFlow)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetFlow)
			r.Patch("/", s.SaveFlowGraph)
			r.Delete("/", s.DeleteFlow)
			r.Post("/run", s.RunFlow)
			r.Get("/runs", s.ListRunReports)
			r.Post("/runs", s.SaveRunReport)
			r.Post("/layout", s.LayoutFlow)
			r.Post("/undo", s.UndoFlow)
			r.Post("/redo", s.RedoFlow)
			r.Get("/validate", s.ValidateFlow)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Testflow API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrFlowNotFound):
		status = http.StatusNotFound
	case domain.IsGraphError(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := Spec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "testflow-http",
		"version":     strings.TrimSpace(testflow.Version),
		"api_version": apiVersion,
	})
}

// ListFlows handles GET /api/v1/test-flows.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Store.ListFlows(r.Context())
	if err != nil {
		s.writeError(w, "ListFlows", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// CreateFlow handles POST /api/v1/test-flows.
func (s *Server) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var flow domain.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil || flow.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid flow body"})
		return
	}
	if err := graphstore.Check(flow.FlowGraph); err != nil {
		s.writeError(w, "CreateFlow", err)
		return
	}
	if err := s.Store.CreateFlow(r.Context(), &flow); err != nil {
		s.writeError(w, "CreateFlow", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// GetFlow handles GET /api/v1/test-flows/{id}.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Store.LoadFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "GetFlow", err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// SaveFlowGraph handles PATCH /api/v1/test-flows/{id}. Subscribers of the
// flow receive the resulting graph diff.
func (s *Server) SaveFlowGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var graph domain.FlowGraph
	if err := json.NewDecoder(r.Body).Decode(&graph); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid graph body"})
		return
	}
	diff, err := s.Sessions.SaveGraph(r.Context(), id, graph)
	if err != nil {
		s.writeError(w, "SaveFlow", err)
		return
	}
	s.broadcastDiff(id, diff)
	w.WriteHeader(http.StatusNoContent)
}

// broadcastDiff pushes a graph diff to the subscribers of a flow.
func (s *Server) broadcastDiff(id string, diff *domain.GraphDiff) {
	if diff == nil || s.Streams.Subscribers(id) == 0 {
		return
	}
	b, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("encode graph diff", "flow_id", id, "err", err)
		return
	}
	s.Streams.Broadcast(id, string(b))
}

// DeleteFlow handles DELETE /api/v1/test-flows/{id}.
func (s *Server) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteFlow(r.Context(), id); err != nil {
		s.writeError(w, "DeleteFlow", err)
		return
	}
	s.Sessions.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// ListRunReports handles GET /api/v1/test-flows/{id}/runs.
func (s *Server) ListRunReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.Store.ListRunReports(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "ListRunReports", err)
		return
	}
	if reports == nil {
		reports = []domain.RunReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// SaveRunReport handles POST /api/v1/test-flows/{id}/runs.
func (s *Server) SaveRunReport(w http.ResponseWriter, r *http.Request) {
	var report domain.RunReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid report body"})
		return
	}
	if err := s.Store.SaveRunReport(r.Context(), chi.URLParam(r, "id"), &report); err != nil {
		s.writeError(w, "SaveRunReport", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// LayoutFlow handles POST /api/v1/test-flows/{id}/layout.
func (s *Server) LayoutFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		before, after domain.FlowGraph
		positions     map[string]domain.Position
	)
	err := s.Sessions.Edit(r.Context(), id, func(e *testflow.Editor) error {
		before = e.Graph()
		positions = e.AutoLayout()
		after = e.Graph()
		return nil
	})
	if err != nil {
		s.writeError(w, "LayoutFlow", err)
		return
	}
	s.broadcastDiff(id, domain.DiffGraphs(before, after))
	writeJSON(w, http.StatusOK, positions)
}

// UndoFlow handles POST /api/v1/test-flows/{id}/undo.
func (s *Server) UndoFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	diff, err := s.Sessions.Undo(r.Context(), id)
	if err != nil {
		s.writeError(w, "UndoFlow", err)
		return
	}
	s.broadcastDiff(id, diff)
	writeJSON(w, http.StatusOK, diffBody(diff))
}

// RedoFlow handles POST /api/v1/test-flows/{id}/redo.
func (s *Server) RedoFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	diff, err := s.Sessions.Redo(r.Context(), id)
	if err != nil {
		s.writeError(w, "RedoFlow", err)
		return
	}
	s.broadcastDiff(id, diff)
	writeJSON(w, http.StatusOK, diffBody(diff))
}

func diffBody(diff *domain.GraphDiff) *domain.GraphDiff {
	if diff == nil {
		return &domain.GraphDiff{}
	}
	return diff
}

// ValidateFlow handles GET /api/v1/test-flows/{id}/validate.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Store.LoadFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "ValidateFlow", err)
		return
	}
	issues := validator.Validate(flow.FlowGraph)
	if issues == nil {
		issues = []validator.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

// RunFlow handles POST /api/v1/test-flows/{id}/run by relaying the
// orchestrator's event stream as SSE. One run per flow at a time.
func (s *Server) RunFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.Orchestrator == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no orchestrator configured"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		s.writeError(w, "RunFlow", domain.ErrRunInProgress)
		return
	}
	s.running[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	stream, err := s.Orchestrator.RunStream(r.Context(), id, r.URL.Query().Get("environment_id"))
	if err != nil {
		s.writeError(w, "RunFlow", err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.logger.With("flow_id", id)
	log.Info("SSE: relaying run")
	for {
		frame, err := stream.Recv()
		if err != nil {
			if r.Context().Err() != nil {
				log.Info("SSE client disconnected during run")
				return
			}
			if !isEOF(err) {
				log.Warn("run stream failed", "err", err)
				msg, _ := json.Marshal(domain.RunEvent{Type: domain.EventError, Error: err.Error()})
				_ = writeFrame(w, flusher, msg)
			}
			return
		}
		if err := writeFrame(w, flusher, frame); err != nil {
			log.Info("SSE write failed", "err", err)
			return
		}
	}
}

// SubscribeEvents handles GET /api/v1/test-flows/{id}/events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()
	s.logger.Info("SSE: subscribing to flow updates", "flow_id", id)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = writeFrame(w, flusher, []byte(msg))
		}
	}
}
