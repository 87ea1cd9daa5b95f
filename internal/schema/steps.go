package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StepType discriminates the closed set of visual workflow step kinds.
type StepType string

const (
	StepReadCoords      StepType = "read_coords"
	StepLookupExcel     StepType = "lookup_excel"
	StepLookupDB        StepType = "lookup_db"
	StepLookupAPI       StepType = "lookup_api"
	StepFormatWithLLM   StepType = "format_with_llm"
	StepWriteCoords     StepType = "write_coords"
	StepTranscribeAudio StepType = "transcribe_audio"
	StepRecordAudio     StepType = "record_audio"
)

var knownStepTypes = map[StepType]bool{
	StepReadCoords:      true,
	StepLookupExcel:     true,
	StepLookupDB:        true,
	StepLookupAPI:       true,
	StepFormatWithLLM:   true,
	StepWriteCoords:     true,
	StepTranscribeAudio: true,
	StepRecordAudio:     true,
}

// TargetFieldSpec names one output field of a format_with_llm step and the
// human description fed into the prompt.
type TargetFieldSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Step is one node of a visual workflow. The prelude (StepID, Type, Name,
// Enabled) is shared; the remaining fields are populated per Type. JSON
// persistence uses the step_type discriminant and unknown tags are rejected
// at decode time.
type Step struct {
	StepID  string   `json:"step_id"`
	Type    StepType `json:"step_type"`
	Name    string   `json:"name,omitempty"`
	Enabled bool     `json:"enabled"`

	// read_coords, write_coords
	X      int `json:"x,omitempty"`
	Y      int `json:"y,omitempty"`
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// read_coords
	ExtractNumbers bool `json:"extract_numbers,omitempty"`

	// lookup_excel
	FilePath            string   `json:"file_path,omitempty"`
	SheetName           string   `json:"sheet_name,omitempty"`
	SearchColumn        string   `json:"search_column,omitempty"`
	SearchValueVariable string   `json:"search_value_variable,omitempty"`
	ReturnColumns       []string `json:"return_columns,omitempty"`

	// format_with_llm
	InputVariable string            `json:"input_variable,omitempty"`
	TargetFields  []TargetFieldSpec `json:"target_fields,omitempty"`

	// write_coords
	ContentTemplate string `json:"content_template,omitempty"`
	InsertMethod    string `json:"insert_method,omitempty"`
	KeySequence     string `json:"key_sequence,omitempty"`

	// transcribe_audio, record_audio
	Language string `json:"language,omitempty"`

	// shared by producing steps
	OutputVariable string `json:"output_variable,omitempty"`
}

// stepAlias avoids UnmarshalJSON recursion.
type stepAlias Step

func (s *Step) UnmarshalJSON(b []byte) error {
	var a stepAlias
	// Default enabled to true when absent, matching the stored form.
	a.Enabled = true
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	if !knownStepTypes[a.Type] {
		return fmt.Errorf("unknown step type: %q", a.Type)
	}
	*s = Step(a)
	return nil
}

// VisualWorkflow is an ordered step graph, interpreted server-side.
type VisualWorkflow struct {
	WorkflowID  string    `json:"workflow_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Hotkey      string    `json:"hotkey,omitempty"`
	Enabled     bool      `json:"enabled"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// inputVariables returns the variable names a step reads, if any.
func (s *Step) inputVariables() []string {
	switch s.Type {
	case StepLookupExcel:
		if s.SearchValueVariable != "" {
			return []string{s.SearchValueVariable}
		}
	case StepFormatWithLLM:
		if s.InputVariable != "" {
			return []string{s.InputVariable}
		}
	}
	return nil
}

// outputVariable returns the variable name a step writes, if any.
func (s *Step) outputVariable() string {
	switch s.Type {
	case StepReadCoords, StepLookupExcel, StepLookupDB, StepLookupAPI,
		StepFormatWithLLM, StepTranscribeAudio, StepRecordAudio:
		return s.OutputVariable
	}
	return ""
}

// Validate checks structural invariants: non-empty id, unique step ids, known
// step types, and that every variable a step reads was written by an earlier
// enabled step or supplied as an initial variable.
func (w *VisualWorkflow) Validate(initialVars []string) error {
	if strings.TrimSpace(w.WorkflowID) == "" {
		return fmt.Errorf("workflow_id is required")
	}
	defined := map[string]bool{}
	for _, v := range initialVars {
		defined[v] = true
	}
	seen := map[string]bool{}
	for i := range w.Steps {
		st := &w.Steps[i]
		if strings.TrimSpace(st.StepID) == "" {
			return fmt.Errorf("step %d: step_id is required", i)
		}
		if seen[st.StepID] {
			return fmt.Errorf("duplicate step_id: %s", st.StepID)
		}
		seen[st.StepID] = true
		if !knownStepTypes[st.Type] {
			return fmt.Errorf("step %s: unknown step type: %q", st.StepID, st.Type)
		}
		if !st.Enabled {
			continue
		}
		for _, in := range st.inputVariables() {
			if !defined[in] {
				return fmt.Errorf("step %s: variable %q is not written by any earlier enabled step", st.StepID, in)
			}
		}
		if out := st.outputVariable(); out != "" {
			defined[out] = true
		}
	}
	return nil
}
