package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
	"github.com/chartbridge/chartbridge/internal/template"
)

// Step failure codes. These are stable values surfaced in execution results.
const (
	CodeNoTextFound      = "NoTextFound"
	CodeNoNumbersFound   = "NoNumbersFound"
	CodeFileNotFound     = "FileNotFound"
	CodeNoMatch          = "NoMatch"
	CodeUnknownColumn    = "UnknownColumn"
	CodeNotImplemented   = "NotImplemented"
	CodeNoTranscription  = "NoTranscription"
	CodeAgentUnreachable = "AgentUnreachable"
	CodeAgentTimeout     = "AgentTimeout"
	CodeAgentError       = "AgentError"
	CodeLLMError         = "LLMError"
)

// stepFailure is a value outcome, not a Go error: step problems are expected
// terminal results the response carries to the caller.
type stepFailure struct {
	Code    string
	Message string
}

// Result is the outcome of one interpreter run. On failure FailedStep names
// the offending step and Variables holds everything accumulated before it.
type Result struct {
	Status       string         `json:"status"`
	WorkflowID   string         `json:"workflow_id"`
	FailedStep   string         `json:"failed_step,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Variables    map[string]any `json:"variables"`
	StepsRun     int            `json:"steps_run"`
}

// Executor interprets visual workflows. AgentURL is the base of the agent's
// callback server (write_coords posts there).
type Executor struct {
	IO       desktop.IO
	AgentURL string
	LLM      *LLMFormatter
	Logger   *log.Logger

	client *http.Client
}

func NewExecutor(io desktop.IO, agentURL string, llm *LLMFormatter, logger *log.Logger) *Executor {
	return &Executor{
		IO:       io,
		AgentURL: agentURL,
		LLM:      llm,
		Logger:   logger,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Run executes the workflow's enabled steps in order over a variable
// environment seeded from initial. The first failing step short-circuits;
// its id and the variables accumulated so far ride in the result.
func (x *Executor) Run(ctx context.Context, wf *schema.VisualWorkflow, initial map[string]any) Result {
	env := map[string]any{}
	for k, v := range initial {
		env[k] = v
	}

	x.IO.SetFailsafe(false)
	x.IO.ReleaseModifiers()
	defer x.IO.ReleaseModifiers()

	steps := 0
	for i := range wf.Steps {
		st := &wf.Steps[i]
		if !st.Enabled {
			continue
		}
		if x.Logger != nil {
			x.Logger.Printf("workflow %s: step %s (%s)", wf.WorkflowID, st.StepID, st.Type)
		}
		if fail := x.runStep(ctx, st, env); fail != nil {
			return Result{
				Status:       "error",
				WorkflowID:   wf.WorkflowID,
				FailedStep:   st.StepID,
				ErrorCode:    fail.Code,
				ErrorMessage: fail.Message,
				Variables:    env,
				StepsRun:     steps,
			}
		}
		steps++
	}
	return Result{Status: "success", WorkflowID: wf.WorkflowID, Variables: env, StepsRun: steps}
}

func (x *Executor) runStep(ctx context.Context, st *schema.Step, env map[string]any) *stepFailure {
	switch st.Type {
	case schema.StepReadCoords:
		return x.readCoords(st, env)
	case schema.StepLookupExcel:
		return x.lookupExcelStep(st, env)
	case schema.StepLookupDB, schema.StepLookupAPI:
		return failf(CodeNotImplemented, "step type %s is reserved", st.Type)
	case schema.StepFormatWithLLM:
		return x.formatWithLLM(ctx, st, env)
	case schema.StepWriteCoords:
		return x.writeCoords(ctx, st, env)
	case schema.StepTranscribeAudio:
		return transcribeAudio(st, env)
	case schema.StepRecordAudio:
		env[st.OutputVariable] = "[recording owned by agent]"
		return nil
	default:
		return failf(CodeNotImplemented, "unknown step type %s", st.Type)
	}
}

func (x *Executor) readCoords(st *schema.Step, env map[string]any) *stepFailure {
	rect := image.Rect(st.X, st.Y, st.X+st.Width, st.Y+st.Height)
	img, err := x.IO.Screenshot(rect)
	if err != nil {
		return failf(CodeNoTextFound, "screenshot failed: %v", err)
	}
	text, err := x.IO.OCR(img)
	if err != nil {
		return failf(CodeNoTextFound, "ocr failed: %v", err)
	}
	if text == "" {
		return failf(CodeNoTextFound, "no text in region %d,%d %dx%d", st.X, st.Y, st.Width, st.Height)
	}
	if st.ExtractNumbers {
		digits := firstDigitRun(text)
		if digits == "" {
			return failf(CodeNoNumbersFound, "no digits in %q", text)
		}
		text = digits
	}
	env[st.OutputVariable] = text
	return nil
}

// firstDigitRun returns the first contiguous run of ASCII digits in s.
func firstDigitRun(s string) string {
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		if isDigit && start < 0 {
			start = i
		}
		if !isDigit && start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func (x *Executor) lookupExcelStep(st *schema.Step, env map[string]any) *stepFailure {
	searchValue := fmt.Sprintf("%v", env[st.SearchValueVariable])
	row, fail := lookupExcel(st.FilePath, st.SheetName, st.SearchColumn, searchValue, st.ReturnColumns)
	if fail != nil {
		return fail
	}
	env[st.OutputVariable] = row
	return nil
}

func (x *Executor) formatWithLLM(ctx context.Context, st *schema.Step, env map[string]any) *stepFailure {
	input, found := env[st.InputVariable]
	if !found {
		return failf(CodeLLMError, "input variable %q is not set", st.InputVariable)
	}
	if x.LLM == nil {
		return failf(CodeLLMError, "no LLM formatter configured")
	}
	fields, err := x.LLM.Format(ctx, input, st.TargetFields)
	if err != nil {
		return failf(CodeLLMError, "%v", err)
	}
	env[st.OutputVariable] = fields
	return nil
}

func (x *Executor) writeCoords(ctx context.Context, st *schema.Step, env map[string]any) *stepFailure {
	content := template.Render(st.ContentTemplate, env)

	body, err := json.Marshal(schema.WriteCoordsRequest{
		X:            st.X,
		Y:            st.Y,
		Content:      content,
		InsertMethod: st.InsertMethod,
		KeySequence:  st.KeySequence,
	})
	if err != nil {
		return failf(CodeAgentError, "encoding callback request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		x.AgentURL+"/execute/write_coords", bytes.NewReader(body))
	if err != nil {
		return failf(CodeAgentError, "building callback request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		if netErr, is := err.(net.Error); is && netErr.Timeout() {
			return failf(CodeAgentTimeout, "agent callback timed out")
		}
		return failf(CodeAgentUnreachable, "agent callback failed: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var agentErr struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &agentErr)
		if agentErr.Error == "" {
			agentErr.Error = fmt.Sprintf("agent returned HTTP %d", resp.StatusCode)
		}
		return failf(CodeAgentError, "%s", agentErr.Error)
	}
	return nil
}

// transcribeAudio only forwards a transcription the caller supplied; the
// interpreter never owns the microphone.
func transcribeAudio(st *schema.Step, env map[string]any) *stepFailure {
	if v, found := env["transcription"]; found {
		env[st.OutputVariable] = v
		return nil
	}
	return failf(CodeNoTranscription, "no transcription supplied to this execution")
}
