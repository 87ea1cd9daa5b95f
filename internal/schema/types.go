// Package schema holds the data model shared by the server, the workflow
// engines, and the agent: captured context, workflow and connector
// configuration, insertion instructions, and the validators that gate them.
package schema

import "time"

// Context is the snapshot the agent captures when a hotkey fires.
type Context struct {
	Hotkey        string     `json:"hotkey" yaml:"hotkey"`
	ActiveField   string     `json:"active_field,omitempty" yaml:"active_field,omitempty"`
	SelectedText  string     `json:"selected_text,omitempty" yaml:"selected_text,omitempty"`
	ClipboardText string     `json:"clipboard_text,omitempty" yaml:"clipboard_text,omitempty"`
	WindowTitle   string     `json:"window_title,omitempty" yaml:"window_title,omitempty"`
	UserID        string     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// InputConfig selects which captured field feeds the workflow and bounds it.
type InputConfig struct {
	// Source is one of "selected_text", "clipboard", "active_field_text".
	Source     string           `json:"source" yaml:"source"`
	Validation *InputValidation `json:"validation,omitempty" yaml:"validation,omitempty"`
}

type InputValidation struct {
	MinLength int `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// RequestConfig describes the outbound request of a declarative workflow.
// Endpoint selects the connector endpoint by name; when empty the engine
// falls back to the connector's sole endpoint, or the first in sorted order.
type RequestConfig struct {
	Template string `json:"template" yaml:"template"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Timeout  int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty"`
}

// ResponseMapping maps output names to JSON-path expressions over the
// connector response.
type ResponseMapping struct {
	Mappings map[string]string `json:"mappings" yaml:"mappings"`
}

// OutputConfig describes one field insertion produced by a workflow.
type OutputConfig struct {
	Type         string `json:"type,omitempty" yaml:"type,omitempty"` // "text" or "icd10"
	TargetField  string `json:"target_field" yaml:"target_field"`
	Content      string `json:"content" yaml:"content"`
	Mode         string `json:"mode,omitempty" yaml:"mode,omitempty"` // replace, append, prepend
	Navigation   string `json:"navigation,omitempty" yaml:"navigation,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	ClickBefore  string `json:"click_before,omitempty" yaml:"click_before,omitempty"` // "x,y"
	InsertMethod string `json:"insert_method,omitempty" yaml:"insert_method,omitempty"`
}

// SecurityConfig gates which target fields a workflow may write.
type SecurityConfig struct {
	AllowedFields       []string `json:"allowed_fields,omitempty" yaml:"allowed_fields,omitempty"`
	RequireConfirmation bool     `json:"require_confirmation,omitempty" yaml:"require_confirmation,omitempty"`
	MaxResponseSize     int      `json:"max_response_size,omitempty" yaml:"max_response_size,omitempty"`
}

// ValidationConfig describes checks applied to extracted response data.
type ValidationConfig struct {
	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	ICD10Format    bool     `json:"icd10_format,omitempty" yaml:"icd10_format,omitempty"`
}

// WorkflowConfig is a declarative workflow: hotkey in, one connector call,
// insertion instructions out. Immutable after load.
type WorkflowConfig struct {
	WorkflowID string            `json:"workflow_id" yaml:"workflow_id"`
	Name       string            `json:"name" yaml:"name"`
	Hotkey     string            `json:"hotkey" yaml:"hotkey"`
	Enabled    bool              `json:"enabled" yaml:"enabled"`
	Input      InputConfig       `json:"input" yaml:"input"`
	Connector  string            `json:"connector" yaml:"connector"`
	Request    RequestConfig     `json:"request" yaml:"request"`
	Response   ResponseMapping   `json:"response" yaml:"response"`
	Validation *ValidationConfig `json:"validation,omitempty" yaml:"validation,omitempty"`
	Output     []OutputConfig    `json:"output" yaml:"output"`
	Security   *SecurityConfig   `json:"security,omitempty" yaml:"security,omitempty"`
}

// AuthConfig describes how a connector authenticates to its upstream.
type AuthConfig struct {
	// Type is one of "bearer_token", "api_key", "basic", "none".
	Type     string `json:"type" yaml:"type"`
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Header   string `json:"header,omitempty" yaml:"header,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// RetryPolicy bounds connector retries.
type RetryPolicy struct {
	MaxRetries   int     `json:"max_retries" yaml:"max_retries"`
	Backoff      string  `json:"backoff,omitempty" yaml:"backoff,omitempty"` // "fixed" or "exponential"
	InitialDelay float64 `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"` // seconds
}

// ConnectorConfig describes one named outbound HTTP client.
type ConnectorConfig struct {
	Type        string            `json:"type" yaml:"type"` // "rest_api"
	BaseURL     string            `json:"base_url" yaml:"base_url"`
	Auth        *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
	Endpoints   map[string]string `json:"endpoints" yaml:"endpoints"`
	Timeout     int               `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds
	RetryPolicy *RetryPolicy      `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// InsertionInstruction tells the agent to perform one UI write.
type InsertionInstruction struct {
	TargetField  string `json:"target_field"`
	Content      string `json:"content"`
	Mode         string `json:"mode"` // replace, append, prepend
	Type         string `json:"type"` // text, icd10
	Navigation   string `json:"navigation,omitempty"`
	Label        string `json:"label,omitempty"`
	ClickBefore  string `json:"click_before,omitempty"`
	InsertMethod string `json:"insert_method,omitempty"`
}

// WorkflowResponse is what the trigger endpoint returns to the agent.
// Status is "success" or "error"; workflow-level failures ride in
// ErrorMessage with HTTP 200, per the declarative path contract.
type WorkflowResponse struct {
	Status          string                 `json:"status"`
	WorkflowID      string                 `json:"workflow_id"`
	Insertions      []InsertionInstruction `json:"insertions"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
	Timestamp       time.Time              `json:"timestamp"`
}

// TriggerRequest is the body of POST /api/trigger.
type TriggerRequest struct {
	Hotkey  string  `json:"hotkey"`
	Context Context `json:"context"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status           string  `json:"status"`
	WorkflowsLoaded  int     `json:"workflows_loaded"`
	ConnectorsActive int     `json:"connectors_active"`
	Version          string  `json:"version"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// ICD10Code is one entry of the optional validation catalog.
type ICD10Code struct {
	Code     string `json:"code" yaml:"code"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// WriteCoordsRequest is the body the visual interpreter posts to the agent's
// callback server.
type WriteCoordsRequest struct {
	X            int    `json:"x"`
	Y            int    `json:"y"`
	Content      string `json:"content"`
	InsertMethod string `json:"insert_method,omitempty"`
	KeySequence  string `json:"key_sequence,omitempty"`
}
