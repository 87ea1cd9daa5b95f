// Package engine executes declarative workflows: hotkey in, one connector
// call, an ordered list of insertion instructions out. Workflow-level
// failures fold into a status:"error" response rather than an error return,
// so the trigger endpoint can keep its HTTP-200 contract.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chartbridge/chartbridge/internal/audit"
	"github.com/chartbridge/chartbridge/internal/connector"
	"github.com/chartbridge/chartbridge/internal/extract"
	"github.com/chartbridge/chartbridge/internal/schema"
	"github.com/chartbridge/chartbridge/internal/template"
)

// ErrUnknownHotkey is returned when no enabled workflow is bound to the
// hotkey. The server maps it to 400; it is not a workflow-level failure.
var ErrUnknownHotkey = errors.New("no workflow bound to hotkey")

// Engine holds the loaded declarative workflows and their connectors.
type Engine struct {
	byHotkey map[string]schema.WorkflowConfig
	pool     *connector.Registry
	icd10    *schema.ICD10Validator
	auditLog *audit.Log
	logger   *log.Logger
	now      func() time.Time
}

func New(workflows []schema.WorkflowConfig, pool *connector.Registry, icd10 *schema.ICD10Validator, auditLog *audit.Log, logger *log.Logger) *Engine {
	byHotkey := map[string]schema.WorkflowConfig{}
	for _, wf := range workflows {
		if wf.Enabled {
			byHotkey[schema.NormalizeHotkey(wf.Hotkey)] = wf
		}
	}
	return &Engine{
		byHotkey: byHotkey,
		pool:     pool,
		icd10:    icd10,
		auditLog: auditLog,
		logger:   logger,
		now:      time.Now,
	}
}

// Workflows returns the loaded workflows for the listing endpoint.
func (e *Engine) Workflows() []schema.WorkflowConfig {
	out := make([]schema.WorkflowConfig, 0, len(e.byHotkey))
	for _, wf := range e.byHotkey {
		out = append(out, wf)
	}
	return out
}

// Match resolves a hotkey to its workflow, case- and whitespace-insensitive.
func (e *Engine) Match(hotkey string) (schema.WorkflowConfig, error) {
	wf, found := e.byHotkey[schema.NormalizeHotkey(hotkey)]
	if !found {
		return schema.WorkflowConfig{}, fmt.Errorf("%w: %s", ErrUnknownHotkey, hotkey)
	}
	return wf, nil
}

// Execute runs the workflow bound to the hotkey against the captured
// context. It returns ErrUnknownHotkey for unbound hotkeys; every other
// failure is reported inside the WorkflowResponse.
func (e *Engine) Execute(ctx context.Context, hotkey string, captured schema.Context) (schema.WorkflowResponse, error) {
	wf, err := e.Match(hotkey)
	if err != nil {
		return schema.WorkflowResponse{}, err
	}

	start := e.now()
	resp, errCode := e.run(ctx, wf, captured)
	resp.WorkflowID = wf.WorkflowID
	resp.ExecutionTimeMS = e.now().Sub(start).Milliseconds()
	resp.Timestamp = e.now().UTC()

	e.audit(wf, captured, resp, errCode)
	return resp, nil
}

func (e *Engine) run(ctx context.Context, wf schema.WorkflowConfig, captured schema.Context) (schema.WorkflowResponse, string) {
	inputText, err := bindInput(wf.Input, captured)
	if err != nil {
		return errorResponse(err.Error()), "INPUT_VALIDATION"
	}

	conn, err := e.pool.Get(wf.Connector)
	if err != nil {
		return errorResponse(err.Error()), "UNKNOWN_CONNECTOR"
	}

	payload := e.requestBody(wf.Request.Template, inputText, captured)

	endpoint := wf.Request.Endpoint
	if endpoint == "" {
		endpoints := conn.Endpoints()
		if len(endpoints) == 0 {
			return errorResponse("connector has no endpoints"), "NO_ENDPOINT"
		}
		endpoint = endpoints[0]
	}

	callCtx := ctx
	if wf.Request.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(wf.Request.Timeout)*time.Second)
		defer cancel()
	}

	body, err := conn.Execute(callCtx, endpoint, payload, wf.Request.Method)
	if err != nil {
		if e.logger != nil {
			e.logger.Printf("workflow %s: connector call failed: %v", wf.WorkflowID, err)
		}
		code := "CONNECTOR_ERROR"
		var ce connector.Error
		if errors.As(err, &ce) {
			code = ce.Code()
		}
		return errorResponse(err.Error()), code
	}

	data, err := extract.Extract(body, wf.Response.Mappings)
	if err != nil {
		return errorResponse(err.Error()), "EXTRACTION_ERROR"
	}

	if msg := e.validate(wf, data); msg != "" {
		return errorResponse(msg), "RESPONSE_VALIDATION"
	}

	insertions, msg := e.buildInsertions(wf, data)
	if msg != "" {
		return errorResponse(msg), "OUTPUT_VALIDATION"
	}

	return schema.WorkflowResponse{Status: "success", Insertions: insertions}, ""
}

func errorResponse(msg string) schema.WorkflowResponse {
	return schema.WorkflowResponse{Status: "error", ErrorMessage: msg}
}

// bindInput selects the captured field named by the input clause and applies
// its length bounds.
func bindInput(in schema.InputConfig, captured schema.Context) (string, error) {
	var text string
	switch in.Source {
	case "", "selected_text":
		text = captured.SelectedText
	case "clipboard":
		text = captured.ClipboardText
	case "active_field_text":
		text = captured.ActiveField
	default:
		return "", fmt.Errorf("unknown input source: %s", in.Source)
	}

	if in.Validation != nil {
		if res := schema.ValidateTextLength(text, in.Validation.MinLength, in.Validation.MaxLength); !res.Valid {
			return "", errors.New(res.Error)
		}
	}
	return text, nil
}

// requestBody renders the request template over the captured context with
// JSON-escaped values and parses the result. A template that does not render
// to valid JSON falls back to {"text": <input>}.
func (e *Engine) requestBody(tmpl, inputText string, captured schema.Context) any {
	if tmpl != "" {
		vars := map[string]any{
			"input_text":   jsonEscape(inputText),
			"user_id":      jsonEscape(captured.UserID),
			"window_title": jsonEscape(captured.WindowTitle),
			"active_field": jsonEscape(captured.ActiveField),
		}
		rendered := template.Render(tmpl, vars)
		var parsed any
		if !template.Undefined(rendered) && json.Unmarshal([]byte(rendered), &parsed) == nil {
			return parsed
		}
		if e.logger != nil {
			e.logger.Printf("request template did not render to JSON; falling back to text body")
		}
	}
	return map[string]string{"text": inputText}
}

// jsonEscape escapes s for embedding inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

func (e *Engine) validate(wf schema.WorkflowConfig, data map[string]any) string {
	if wf.Validation != nil {
		if res := schema.ValidateRequiredFields(data, wf.Validation.RequiredFields); !res.Valid {
			return res.Error
		}
		if wf.Validation.ICD10Format {
			fields := icd10Fields(wf)
			for name, v := range data {
				code, isStr := v.(string)
				if !isStr || !fields[name] {
					continue
				}
				if res := e.icd10.ValidateFormat(code); !res.Valid {
					return res.Error
				}
			}
		}
	}
	return ""
}

// icd10Fields lists the extracted fields subject to icd10_format checks: the
// conventional code names plus every field an icd10-typed output consumes.
func icd10Fields(wf schema.WorkflowConfig) map[string]bool {
	fields := map[string]bool{"icd10_code": true, "code": true, "icd10": true}
	for _, out := range wf.Output {
		if out.Type != "icd10" {
			continue
		}
		for _, name := range template.Refs(out.Content) {
			fields[name] = true
		}
	}
	return fields
}

func (e *Engine) buildInsertions(wf schema.WorkflowConfig, data map[string]any) ([]schema.InsertionInstruction, string) {
	whitelist := schema.NewFieldWhitelistValidator(nil)
	maxSize := 0
	if wf.Security != nil {
		whitelist = schema.NewFieldWhitelistValidator(wf.Security.AllowedFields)
		maxSize = wf.Security.MaxResponseSize
	}

	insertions := make([]schema.InsertionInstruction, 0, len(wf.Output))
	for _, out := range wf.Output {
		if res := whitelist.Validate(out.TargetField); !res.Valid {
			return nil, res.Error
		}

		content := template.Render(out.Content, data)
		if template.Undefined(content) {
			return nil, fmt.Sprintf("output for %s references undefined fields: %s", out.TargetField, content)
		}
		if res := schema.ValidateResponseSize(content, maxSize); !res.Valid {
			return nil, res.Error
		}
		if res := schema.ValidateNoScriptInjection(content); !res.Valid {
			return nil, res.Error
		}

		mode := out.Mode
		if mode == "" {
			mode = "replace"
		}
		typ := out.Type
		if typ == "" {
			typ = "text"
		}
		label := template.Render(out.Label, data)
		if template.Undefined(label) {
			label = ""
		}

		insertions = append(insertions, schema.InsertionInstruction{
			TargetField:  out.TargetField,
			Content:      content,
			Mode:         mode,
			Type:         typ,
			Navigation:   out.Navigation,
			Label:        label,
			ClickBefore:  out.ClickBefore,
			InsertMethod: out.InsertMethod,
		})
	}
	return insertions, ""
}

func (e *Engine) audit(wf schema.WorkflowConfig, captured schema.Context, resp schema.WorkflowResponse, errCode string) {
	if e.auditLog == nil {
		return
	}
	status := audit.StatusSuccess
	switch {
	case resp.Status == "success":
		errCode = ""
	case errCode == "TIMEOUT":
		status = audit.StatusTimeout
	default:
		status = audit.StatusError
	}
	e.auditLog.Execution(wf.WorkflowID, captured.UserID, wf.Connector, status, resp.ExecutionTimeMS, errCode)
}
