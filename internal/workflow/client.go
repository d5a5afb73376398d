// Package workflow is the HTTP client for the external workflow engine that
// executes deployments. The engine is a black box: we enqueue work and poll
// step records, nothing more.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/service/deploy"
)

const defaultTimeout = 30 * time.Second

// ErrUnreachable marks transport-level failures so callers can tell
// "network unreachable" apart from a generic engine failure. Requests are
// never retried automatically; the user re-triggers the action.
var ErrUnreachable = errors.New("workflow: engine unreachable")

// Client talks to the workflow engine over HTTP.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

var _ deploy.WorkflowEngine = (*Client)(nil)

// NewClient constructs a workflow engine client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger != nil {
		logger = logger.With("component", "workflow")
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enqueue starts a deploy workflow and returns its ID.
func (c *Client) Enqueue(ctx context.Context, req deploy.EnqueueRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/workflows", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("workflow enqueue request failed", "deployment_id", req.DeploymentID, "error", err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("workflow: engine rejected enqueue: %s", resp.Status)
	}

	var body struct {
		WorkflowID string `json:"workflowId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("workflow: decode enqueue response: %w", err)
	}
	if strings.TrimSpace(body.WorkflowID) == "" {
		return "", errors.New("workflow: engine returned no workflow id")
	}
	return body.WorkflowID, nil
}

// stepRecord is the engine's wire shape for one step.
type stepRecord struct {
	FunctionID   string     `json:"functionId"`
	FunctionName string     `json:"functionName"`
	Status       string     `json:"status"`
	Output       *string    `json:"output"`
	Error        *string    `json:"error"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
}

// Steps fetches the step records of one workflow. Statuses are normalized
// at this boundary; a record with an unknown status fails the whole fetch.
func (c *Client) Steps(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/workflows/"+workflowID+"/steps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("workflow: engine returned %s for workflow %s", resp.Status, workflowID)
	}

	var body struct {
		Steps []stepRecord `json:"steps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("workflow: decode steps response: %w", err)
	}

	steps := make([]domain.WorkflowStep, 0, len(body.Steps))
	for _, record := range body.Steps {
		status, err := domain.ParseStepStatus(record.Status)
		if err != nil {
			return nil, fmt.Errorf("workflow %s step %s: %w", workflowID, record.FunctionName, err)
		}
		steps = append(steps, domain.WorkflowStep{
			FunctionID:   record.FunctionID,
			FunctionName: record.FunctionName,
			Status:       status,
			Output:       record.Output,
			Error:        record.Error,
			StartedAt:    record.StartedAt,
			CompletedAt:  record.CompletedAt,
		})
	}
	return steps, nil
}
