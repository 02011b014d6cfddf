package backend

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
	"time"

	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
)

const (
	pathStart        = "/assessment/start"
	pathChat         = "/assessment/chat"
	pathReport       = "/assessment/report"
	pathRandomReport = "/assessment/random_report"
	pathDebugStart   = "/debug/start"
	pathHealth       = "/health"
	pathDebugChat    = "/chat"

	// maxResponseSize bounds how much of a reply is read (reports are long).
	maxResponseSize = 8 << 20
	maxErrorBody    = 512

	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 90 * time.Second
)

var errEmptyBody = errors.New("empty response body")

// HTTPError is returned for non-2xx replies.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Body)
}

// Config holds configuration for the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the assessment backend over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client. Empty fields of cfg fall back to a
// local backend and a 90 second timeout.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", cfg.BaseURL)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Start opens an assessment session.
func (c *Client) Start(ctx context.Context, mode domain.Mode) (*StartResponse, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, pathStart, StartRequest{Mode: mode}, &resp); err != nil {
		return nil, fmt.Errorf("start assessment: %w", err)
	}
	return &resp, nil
}

// Chat submits one round.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.History == nil {
		req.History = []domain.Turn{}
	}
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, pathChat, req, &resp); err != nil {
		return nil, fmt.Errorf("submit chat turn: %w", err)
	}
	return &resp, nil
}

// Report generates a report from the full history.
func (c *Client) Report(ctx context.Context, history []domain.Turn) (report.Payload, error) {
	if history == nil {
		history = []domain.Turn{}
	}
	raw, err := c.doRaw(ctx, http.MethodPost, pathReport, ChatRequest{UserMessage: "", History: history})
	if err != nil && !errors.Is(err, errEmptyBody) {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	p, err := report.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	return p, nil
}

// RandomReport requests a report for a fictional persona.
func (c *Client) RandomReport(ctx context.Context) (report.Payload, error) {
	raw, err := c.doRaw(ctx, http.MethodPost, pathRandomReport, nil)
	if err != nil && !errors.Is(err, errEmptyBody) {
		return nil, fmt.Errorf("generate random report: %w", err)
	}
	p, err := report.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("generate random report: %w", err)
	}
	return p, nil
}

// DebugStart opens a diagnostic conversation with the production prompt.
func (c *Client) DebugStart(ctx context.Context) (*DebugReply, error) {
	var resp DebugReply
	if err := c.do(ctx, http.MethodPost, pathDebugStart, nil, &resp); err != nil {
		return nil, fmt.Errorf("debug start: %w", err)
	}
	return &resp, nil
}

// Health checks if the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.do(ctx, http.MethodGet, pathHealth, nil, &resp); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &resp, nil
}

// DebugChat sends a free-form diagnostic message.
func (c *Client) DebugChat(ctx context.Context, message string) (*DebugReply, error) {
	var resp DebugReply
	if err := c.do(ctx, http.MethodPost, pathDebugChat, DebugChatRequest{Message: message}, &resp); err != nil {
		return nil, fmt.Errorf("debug chat: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// doRaw performs one request. An empty 2xx body returns errEmptyBody with a
// nil slice.
func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "path", path, "duration", time.Since(start), "error", err)
		return nil, err
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if closeErr := resp.Body.Close(); closeErr != nil {
		c.logger.Debug("failed to close backend response body", "path", path, "error", closeErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read %s response: %w", path, readErr)
	}

	c.logger.Debug("Backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyBody
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
