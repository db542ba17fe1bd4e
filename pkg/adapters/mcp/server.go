// Package mcp exposes flow inspection, editing and runs as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/layout"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/internal/presentation/graph"
	"github.com/aretw0/testflow/internal/validator"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/aretw0/testflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const flowsURI = "testflow://flows"

// ValidateResponse is the structured result of validate_flow.
type ValidateResponse struct {
	Valid  bool              `json:"valid" jsonschema_description:"True when no error-level issue was found"`
	Issues []validator.Issue `json:"issues" jsonschema_description:"Problems found in the graph"`
}

// LayoutResponse is the structured result of layout_flow.
type LayoutResponse struct {
	Positions map[string]domain.Position `json:"positions" jsonschema_description:"Computed top-left position per node"`
	Applied   bool                       `json:"applied" jsonschema_description:"Whether the positions were saved"`
}

// EditResponse is the structured result of the editing tools.
type EditResponse struct {
	Node *domain.Node `json:"node,omitempty" jsonschema_description:"The created node"`
	Edge *domain.Edge `json:"edge,omitempty" jsonschema_description:"The created edge"`
}

// Server exposes a flow repository as an MCP server.
type Server struct {
	store        ports.FlowRepository
	orchestrator ports.Orchestrator
	editorOpts   []testflow.Option
	locker       ports.DistributedLocker
	logger       *slog.Logger
	sessions     *session.Manager
	mcpServer    *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithOrchestrator enables the run_flow tool.
func WithOrchestrator(o ports.Orchestrator) Option {
	return func(s *Server) {
		s.orchestrator = o
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEditorOptions appends options used whenever a tool opens an editor.
func WithEditorOptions(opts ...testflow.Option) Option {
	return func(s *Server) {
		s.editorOpts = append(s.editorOpts, opts...)
	}
}

// WithLocker serializes edits with other replicas sharing the locker.
func WithLocker(l ports.DistributedLocker) Option {
	return func(s *Server) {
		s.locker = l
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(store ports.FlowRepository, opts ...Option) *Server {
	s := &Server{
		store:     store,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("testflow-mcp", strings.TrimSpace(testflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	sessionOpts := []session.Option{
		session.WithLogger(s.logger),
		session.WithEditorOptions(s.editorOpts...),
	}
	if s.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(s.locker))
	}
	s.sessions = session.NewManager(store, sessionOpts...)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List the IDs of all stored test flows."),
	), s.handleListFlows)

	s.mcpServer.AddTool(mcp.NewTool("get_flow",
		mcp.WithDescription("Get a flow with its nodes, edges and variables."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
	), s.handleGetFlow)

	s.mcpServer.AddTool(mcp.NewTool("render_flow",
		mcp.WithDescription("Render a flow as a Mermaid flowchart."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
	), s.handleRenderFlow)

	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Check a flow for dangling edges, bad handles, cycles and invalid configs."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithOutputSchema[ValidateResponse](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("layout_flow",
		mcp.WithDescription("Compute a layered top-to-bottom layout for a flow."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithBoolean("apply", mcp.Description("Save the computed positions")),
		mcp.WithOutputSchema[LayoutResponse](),
	), mcp.NewStructuredToolHandler(s.handleLayout))

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node with the palette defaults for its type."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Node type, e.g. http_request or assertion")),
		mcp.WithNumber("x", mcp.Description("Canvas X position")),
		mcp.WithNumber("y", mcp.Description("Canvas Y position")),
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleAddNode))

	s.mcpServer.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Connect two nodes. An occupied branch handle is replaced."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node ID")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node ID")),
		mcp.WithString("source_handle", mcp.Description("Branch handle: true, false, loop or done")),
		mcp.WithString("label", mcp.Description("Edge label")),
		mcp.WithOutputSchema[EditResponse](),
	), mcp.NewStructuredToolHandler(s.handleConnect))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Revert the last edit made through this server."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithOutputSchema[domain.GraphDiff](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Reapply the last undone edit."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithOutputSchema[domain.GraphDiff](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	if s.orchestrator != nil {
		s.mcpServer.AddTool(mcp.NewTool("run_flow",
			mcp.WithDescription("Run a flow through the orchestrator and return its report."),
			mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
			mcp.WithString("environment_id", mcp.Description("Environment to run against")),
			mcp.WithOutputSchema[domain.RunReport](),
		), mcp.NewStructuredToolHandler(s.handleRun))
	}
}

func (s *Server) handleListFlows(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.store.ListFlows(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list flows failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flow, err := s.store.LoadFlow(ctx, request.GetString("flow_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load flow failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(flow)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRenderFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flow, err := s.store.LoadFlow(ctx, request.GetString("flow_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load flow failed: %v", err)), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(flow.FlowGraph, nil)), nil
}

func (s *Server) handleValidate(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (ValidateResponse, error) {
	flowID, _ := args["flow_id"].(string)
	flow, err := s.store.LoadFlow(ctx, flowID)
	if err != nil {
		return ValidateResponse{}, fmt.Errorf("load flow failed: %w", err)
	}
	issues := validator.Validate(flow.FlowGraph)
	if issues == nil {
		issues = []validator.Issue{}
	}
	return ValidateResponse{Valid: !validator.HasErrors(issues), Issues: issues}, nil
}

func (s *Server) handleLayout(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (LayoutResponse, error) {
	flowID, _ := args["flow_id"].(string)
	apply, _ := args["apply"].(bool)

	if !apply {
		flow, err := s.store.LoadFlow(ctx, flowID)
		if err != nil {
			return LayoutResponse{}, fmt.Errorf("load flow failed: %w", err)
		}
		return LayoutResponse{Positions: layout.Compute(flow.Nodes, flow.Edges)}, nil
	}

	var positions map[string]domain.Position
	err := s.sessions.Edit(ctx, flowID, func(e *testflow.Editor) error {
		positions = e.AutoLayout()
		return nil
	})
	if err != nil {
		return LayoutResponse{}, err
	}
	return LayoutResponse{Positions: positions, Applied: true}, nil
}

func (s *Server) handleAddNode(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	flowID, _ := args["flow_id"].(string)
	nodeType, _ := args["type"].(string)
	x, _ := args["x"].(float64)
	y, _ := args["y"].(float64)

	var resp EditResponse
	err := s.sessions.Edit(ctx, flowID, func(e *testflow.Editor) error {
		n, err := e.AddNode(domain.NodeType(nodeType), domain.Position{X: x, Y: y})
		if err != nil {
			return err
		}
		resp.Node = &n
		return nil
	})
	return resp, err
}

func (s *Server) handleConnect(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (EditResponse, error) {
	flowID, _ := args["flow_id"].(string)
	edge := domain.Edge{}
	edge.SourceNodeID, _ = args["source"].(string)
	edge.TargetNodeID, _ = args["target"].(string)
	if h, _ := args["source_handle"].(string); h != "" && !strings.HasPrefix(h, "source-") {
		edge.SourceHandle = "source-" + h
	} else {
		edge.SourceHandle = h
	}
	edge.Label, _ = args["label"].(string)

	var resp EditResponse
	err := s.sessions.Edit(ctx, flowID, func(e *testflow.Editor) error {
		created, err := e.Connect(edge)
		if err != nil {
			return err
		}
		resp.Edge = &created
		return nil
	})
	return resp, err
}

func (s *Server) handleUndo(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (domain.GraphDiff, error) {
	flowID, _ := args["flow_id"].(string)
	diff, err := s.sessions.Undo(ctx, flowID)
	if err != nil || diff == nil {
		return domain.GraphDiff{}, err
	}
	return *diff, nil
}

func (s *Server) handleRedo(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (domain.GraphDiff, error) {
	flowID, _ := args["flow_id"].(string)
	diff, err := s.sessions.Redo(ctx, flowID)
	if err != nil || diff == nil {
		return domain.GraphDiff{}, err
	}
	return *diff, nil
}

func (s *Server) handleRun(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (domain.RunReport, error) {
	flowID, _ := args["flow_id"].(string)
	envID, _ := args["environment_id"].(string)

	opts := append([]testflow.Option{
		testflow.WithOrchestrator(s.orchestrator),
		testflow.WithLogger(s.logger),
	}, s.editorOpts...)
	e, err := testflow.Open(ctx, s.store, flowID, opts...)
	if err != nil {
		return domain.RunReport{}, err
	}
	defer func() {
		if err := e.Close(context.Background()); err != nil {
			s.logger.Warn("MCP run: close editor failed", "flow_id", flowID, "err", err)
		}
	}()

	report, err := e.Run(ctx, envID)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("run failed: %w", err)
	}
	return *report, nil
}
