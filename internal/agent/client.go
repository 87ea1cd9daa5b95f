package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chartbridge/chartbridge/internal/schema"
)

// Client talks to the orchestration server on the agent's behalf. Every
// request carries the shared bearer token and a fresh correlation id.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.Unmarshal(raw, &apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}

// Health probes the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) (schema.HealthResponse, error) {
	var out schema.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// Workflows fetches the declarative workflow table.
func (c *Client) Workflows(ctx context.Context) ([]schema.WorkflowConfig, error) {
	var out struct {
		Workflows []schema.WorkflowConfig `json:"workflows"`
	}
	err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &out)
	return out.Workflows, err
}

// VisualWorkflows fetches the visual workflow table.
func (c *Client) VisualWorkflows(ctx context.Context) ([]schema.VisualWorkflow, error) {
	var out struct {
		Workflows []schema.VisualWorkflow `json:"workflows"`
	}
	err := c.do(ctx, http.MethodGet, "/api/visual-workflows", nil, &out)
	return out.Workflows, err
}

// Trigger runs the declarative workflow bound to the hotkey.
func (c *Client) Trigger(ctx context.Context, hotkey string, captured schema.Context) (schema.WorkflowResponse, error) {
	var out schema.WorkflowResponse
	err := c.do(ctx, http.MethodPost, "/api/trigger", schema.TriggerRequest{Hotkey: hotkey, Context: captured}, &out)
	return out, err
}

// ExecuteVisual runs a visual workflow by id.
func (c *Client) ExecuteVisual(ctx context.Context, workflowID string, variables map[string]any) error {
	body := map[string]any{"variables": variables}
	return c.do(ctx, http.MethodPost, "/api/visual-workflows/"+workflowID+"/execute", body, nil)
}

// ReportPickerCoordinates posts a picked screen position.
func (c *Client) ReportPickerCoordinates(ctx context.Context, x, y int) error {
	return c.do(ctx, http.MethodPost, "/api/picker/coordinates", map[string]int{"x": x, "y": y}, nil)
}
