package connector

import (
	"fmt"
	"strings"
)

// Error is the unified error interface returned by connectors. Every error
// carries a stable machine-readable code; Retryable tells the retry loop
// whether another attempt can help.
type Error interface {
	error
	Code() string
	StatusCode() int
	Retryable() bool
	Details() map[string]any
}

type errorBase struct {
	code       string
	statusCode int
	message    string
	retryable  bool
	details    map[string]any
}

func (e *errorBase) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s: %s", e.code, msg)
}
func (e *errorBase) Code() string            { return e.code }
func (e *errorBase) StatusCode() int         { return e.statusCode }
func (e *errorBase) Retryable() bool         { return e.retryable }
func (e *errorBase) Details() map[string]any { return e.details }

// TimeoutError: the request exceeded the connector timeout. Retriable.
type TimeoutError struct{ errorBase }

// ConnectionError: refused, reset, or unreachable. Retriable.
type ConnectionError struct{ errorBase }

// HTTPError: a 4xx response. Terminal; the upstream rejected the request.
type HTTPError struct{ errorBase }

// ServerError: a 5xx response. Retriable.
type ServerError struct{ errorBase }

// InvalidResponseError: a 2xx body that is not valid JSON. Terminal.
type InvalidResponseError struct{ errorBase }

// AuthError: auth material could not be resolved at construction time.
type AuthError struct{ errorBase }

// InvalidEndpointError: the endpoint name is not in the connector's table.
type InvalidEndpointError struct{ errorBase }

func newTimeoutError(timeoutSeconds int, attempt int) *TimeoutError {
	return &TimeoutError{errorBase{
		code:      "TIMEOUT",
		message:   fmt.Sprintf("request timeout after %ds", timeoutSeconds),
		retryable: true,
		details:   map[string]any{"attempt": attempt + 1},
	}}
}

func newConnectionError(err error, attempt int) *ConnectionError {
	return &ConnectionError{errorBase{
		code:      "CONNECTION_ERROR",
		message:   fmt.Sprintf("connection error: %v", err),
		retryable: true,
		details:   map[string]any{"attempt": attempt + 1},
	}}
}

func newHTTPError(status int, body string) *HTTPError {
	return &HTTPError{errorBase{
		code:       fmt.Sprintf("HTTP_%d", status),
		statusCode: status,
		message:    fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200)),
		retryable:  false,
	}}
}

func newServerError(status int, body string, attempt int) *ServerError {
	return &ServerError{errorBase{
		code:       "SERVER_ERROR",
		statusCode: status,
		message:    fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200)),
		retryable:  true,
		details:    map[string]any{"attempt": attempt + 1, "status_code": status},
	}}
}

func newInvalidResponseError(body string) *InvalidResponseError {
	return &InvalidResponseError{errorBase{
		code:      "INVALID_RESPONSE",
		message:   "response is not valid JSON",
		retryable: false,
		details:   map[string]any{"content": truncate(body, 200)},
	}}
}

func newAuthError(message string) *AuthError {
	return &AuthError{errorBase{
		code:      "AUTH_ERROR",
		message:   message,
		retryable: false,
	}}
}

func newInvalidEndpointError(name string, available []string) *InvalidEndpointError {
	return &InvalidEndpointError{errorBase{
		code:      "INVALID_ENDPOINT",
		message:   fmt.Sprintf("unknown endpoint: %s", name),
		retryable: false,
		details:   map[string]any{"available_endpoints": available},
	}}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
