// Package remote provides the HTTP client for the assistant backend: task
// dispatch, status polling, and streamed responses.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

var (
	// ErrUnreachable indicates a transport-level failure: the worker could
	// not be reached at all. Callers surface this immediately instead of
	// retrying, because it means the worker is down rather than busy.
	ErrUnreachable = errors.New("remote worker unreachable")
	errEmptyTaskID = errors.New("remote worker returned no task id")
)

// TaskState is the remote worker's view of a task, as reported by the status
// endpoint.
type TaskState string

const (
	StateNotReady  TaskState = "not_ready"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
)

// DispatchResult is the worker's answer to a dispatch request: either an
// immediate payload or a task id to track asynchronously.
type DispatchResult struct {
	TaskID    string
	Content   string
	Immediate bool
}

// StatusResult is one normalized observation from the status endpoint.
type StatusResult struct {
	State   TaskState
	Content string
	Err     string
	// Periods carries partial simulation output when the payload is
	// period-shaped; empty for other task kinds.
	Periods []domain.PeriodPartial
	// Complete is set when the worker explicitly reports the simulation done.
	Complete bool
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		RequestTimeout: 30 * time.Second,
	}
}

// Client talks to the remote worker over HTTP.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a backend client. Stream requests manage their own
// deadlines, so the shared http.Client carries no timeout; per-request
// contexts bound everything else.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   cfg.BaseURL,
		http:   &http.Client{},
		logger: logger,
	}
}

// Dispatch submits a request for the given task kind. The worker either
// answers inline or returns a task id for asynchronous tracking.
func (c *Client) Dispatch(ctx context.Context, kind domain.TaskKind, payload map[string]any) (*DispatchResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode dispatch payload: %w", err)
	}

	url := fmt.Sprintf("%s/tasks/%s", c.base, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: worker returned %d", ErrUnreachable, resp.StatusCode)
	}

	raw, err := decodeObject(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode dispatch response: %w", err)
	}

	if errMsg := probeError(raw); errMsg != "" {
		return nil, fmt.Errorf("dispatch rejected: %s", errMsg)
	}

	// A task id wins over inline content: dispatch acknowledgements often
	// carry a human-readable "queued" message alongside the id.
	if taskID := probeTaskID(raw); taskID != "" {
		c.logger.Debug("task dispatched", "kind", kind, "remote_task_id", taskID)
		return &DispatchResult{TaskID: taskID}, nil
	}

	if content := probeContent(raw); content != "" {
		return &DispatchResult{Content: content, Immediate: true}, nil
	}

	return nil, errEmptyTaskID
}

// CheckStatus queries the status endpoint for one task.
func (c *Client) CheckStatus(ctx context.Context, taskID string) (*StatusResult, error) {
	url := fmt.Sprintf("%s/tasks/%s/status", c.base, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: worker returned %d", ErrUnreachable, resp.StatusCode)
	}

	raw, err := decodeObject(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	return normalizeStatus(raw), nil
}

// OpenStream opens the newline-delimited response stream for a task. The
// caller owns the returned reader; canceling ctx closes the underlying
// transport.
func (c *Client) OpenStream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/tasks/%s/stream", c.base, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		closeBody(resp.Body, c.logger)
		return nil, fmt.Errorf("%w: worker returned %d", ErrUnreachable, resp.StatusCode)
	}

	return resp.Body, nil
}

func decodeObject(r io.Reader) (map[string]any, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func closeBody(body io.Closer, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		logger.Debug("failed to close response body", "error", err)
	}
}
