// Package connector encapsulates outbound HTTP for workflows. Each connector
// owns its auth material, base URL, endpoint table, timeout, and retry
// policy; a process-wide registry maps connector names to instances.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chartbridge/chartbridge/internal/schema"
)

// Connector executes named endpoint calls against an external service.
type Connector interface {
	// Execute resolves the endpoint by name, issues the request with the
	// connector's auth and retry policy, and returns the parsed JSON body.
	Execute(ctx context.Context, endpoint string, payload any, method string) (json.RawMessage, error)
	// Endpoints returns the configured endpoint names, sorted.
	Endpoints() []string
}

// Rest is the rest_api connector implementation.
type Rest struct {
	cfg       schema.ConnectorConfig
	client    *http.Client
	headers   map[string]string
	basicUser string
	basicPass string

	// sleep is replaced in tests to observe back-off without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRest builds a connector from configuration, resolving auth material
// eagerly so a missing token env var fails at startup rather than on the
// first request.
func NewRest(cfg schema.ConnectorConfig) (*Rest, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	c := &Rest{
		cfg:     cfg,
		client:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
		headers: map[string]string{},
		sleep:   sleepContext,
	}
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}
	if cfg.Auth != nil {
		if err := c.setupAuth(*cfg.Auth); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Rest) setupAuth(auth schema.AuthConfig) error {
	switch auth.Type {
	case "", "none":
		return nil
	case "bearer_token":
		token, err := resolveToken(auth)
		if err != nil {
			return err
		}
		c.headers["Authorization"] = "Bearer " + token
	case "api_key":
		token, err := resolveToken(auth)
		if err != nil {
			return err
		}
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		c.headers[header] = token
	case "basic":
		c.basicUser = auth.Username
		c.basicPass = auth.Password
	default:
		return newAuthError("unknown auth type: " + auth.Type)
	}
	return nil
}

func resolveToken(auth schema.AuthConfig) (string, error) {
	if auth.Token != "" {
		return auth.Token, nil
	}
	if auth.TokenEnv == "" {
		return "", newAuthError("no token or token_env specified")
	}
	token := os.Getenv(auth.TokenEnv)
	if token == "" {
		return "", newAuthError("token environment variable '" + auth.TokenEnv + "' not set")
	}
	return token, nil
}

func (c *Rest) Endpoints() []string {
	names := make([]string, 0, len(c.cfg.Endpoints))
	for name := range c.cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Rest) endpointURL(name string) (string, error) {
	path, found := c.cfg.Endpoints[name]
	if !found {
		return "", newInvalidEndpointError(name, c.Endpoints())
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// Execute implements Connector. Method defaults to POST. The retry loop
// makes max_retries+1 attempts: 2xx returns the parsed body, 4xx and non-JSON
// bodies are terminal, 5xx and transport failures are retried with fixed or
// exponential back-off. The final attempt's error is surfaced.
func (c *Rest) Execute(ctx context.Context, endpoint string, payload any, method string) (json.RawMessage, error) {
	if method == "" {
		method = http.MethodPost
	}
	url, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newInvalidResponseError("request payload is not serializable")
	}

	policy := c.cfg.RetryPolicy
	maxRetries := 0
	backoff := "fixed"
	initialDelay := 1.0
	if policy != nil {
		maxRetries = policy.MaxRetries
		if policy.Backoff != "" {
			backoff = policy.Backoff
		}
		if policy.InitialDelay > 0 {
			initialDelay = policy.InitialDelay
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, attemptErr := c.attempt(ctx, method, url, body, attempt)
		if attemptErr == nil {
			return result, nil
		}
		var ce Error
		if !errors.As(attemptErr, &ce) || !ce.Retryable() {
			return nil, attemptErr
		}
		lastErr = attemptErr

		if attempt < maxRetries {
			delay := initialDelay
			if backoff == "exponential" {
				delay = initialDelay * float64(int(1)<<attempt)
			}
			if err := c.sleep(ctx, time.Duration(delay*float64(time.Second))); err != nil {
				return nil, newConnectionError(err, attempt)
			}
		}
	}
	return nil, lastErr
}

func (c *Rest) attempt(ctx context.Context, method, url string, body []byte, attempt int) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, newConnectionError(err, attempt)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.basicUser != "" || c.basicPass != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, newTimeoutError(c.cfg.Timeout, attempt)
		}
		return nil, newConnectionError(err, attempt)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newConnectionError(err, attempt)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !json.Valid(respBody) {
			return nil, newInvalidResponseError(string(respBody))
		}
		return json.RawMessage(respBody), nil
	case resp.StatusCode >= 500:
		return nil, newServerError(resp.StatusCode, string(respBody), attempt)
	default:
		return nil, newHTTPError(resp.StatusCode, string(respBody))
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// sleepContext waits d or returns early with the context's error.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// New builds a connector of the configured type. Only rest_api exists today;
// other tags fail closed at startup.
func New(cfg schema.ConnectorConfig) (Connector, error) {
	switch cfg.Type {
	case "", "rest_api":
		return NewRest(cfg)
	default:
		return nil, newAuthError("unknown connector type: " + cfg.Type)
	}
}
