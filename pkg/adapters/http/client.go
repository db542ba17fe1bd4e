package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// Client talks to a flow API. It implements ports.FlowRepository and
// ports.Orchestrator, so an editor can run entirely against a remote backend.
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
	logger  *slog.Logger
}

var (
	_ ports.FlowRepository = (*Client)(nil)
	_ ports.Orchestrator   = (*Client)(nil)
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying client. Run streams need no timeout on it.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithHeader adds a header to every request, e.g. Authorization.
func WithHeader(key, value string) ClientOption {
	return func(cl *Client) {
		cl.headers.Add(key, value)
	}
}

// WithClientLogger sets a custom structured logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		headers: make(http.Header),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) flowURL(flowID string, suffix string) string {
	return c.baseURL + "/api/v1/test-flows/" + url.PathEscape(flowID) + suffix
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError maps an error response to a domain error.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrRunInProgress, msg)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}

func (c *Client) decode(ctx context.Context, method, target string, body, out any) error {
	resp, err := c.do(ctx, method, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// LoadFlow fetches GET /api/v1/test-flows/{id}.
func (c *Client) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	var flow domain.Flow
	if err := c.decode(ctx, http.MethodGet, c.flowURL(flowID, ""), nil, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// SaveFlow sends PATCH /api/v1/test-flows/{id} with the graph payload.
func (c *Client) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	return c.decode(ctx, http.MethodPatch, c.flowURL(flowID, ""), graph, nil)
}

// SaveRunReport sends POST /api/v1/test-flows/{id}/runs.
func (c *Client) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	return c.decode(ctx, http.MethodPost, c.flowURL(flowID, "/runs"), report, nil)
}

// CreateFlow sends POST /api/v1/test-flows.
func (c *Client) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	return c.decode(ctx, http.MethodPost, c.baseURL+"/api/v1/test-flows", flow, nil)
}

// DeleteFlow sends DELETE /api/v1/test-flows/{id}.
func (c *Client) DeleteFlow(ctx context.Context, flowID string) error {
	return c.decode(ctx, http.MethodDelete, c.flowURL(flowID, ""), nil, nil)
}

// ListFlows fetches GET /api/v1/test-flows.
func (c *Client) ListFlows(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.decode(ctx, http.MethodGet, c.baseURL+"/api/v1/test-flows", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRunReports fetches GET /api/v1/test-flows/{id}/runs.
func (c *Client) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	var reports []domain.RunReport
	if err := c.decode(ctx, http.MethodGet, c.flowURL(flowID, "/runs"), nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// RunStream opens POST /api/v1/test-flows/{id}/run and returns its SSE frames.
func (c *Client) RunStream(ctx context.Context, flowID, environmentID string) (ports.EventStream, error) {
	target := c.flowURL(flowID, "/run")
	if environmentID != "" {
		target += "?environment_id=" + url.QueryEscape(environmentID)
	}
	resp, err := c.do(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected run stream content type %q", ct)
	}
	c.logger.Debug("run stream opened", "flow_id", flowID, "environment_id", environmentID)
	return newSSEStream(resp.Body), nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
