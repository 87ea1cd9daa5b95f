package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStepUnmarshalRejectsUnknownType(t *testing.T) {
	var s Step
	err := json.Unmarshal([]byte(`{"step_id":"1","step_type":"teleport"}`), &s)
	if err == nil {
		t.Fatal("expected unknown step type to be rejected")
	}
	if !strings.Contains(err.Error(), "teleport") {
		t.Fatalf("error should name the offending tag: %v", err)
	}
}

func TestStepUnmarshalDefaultsEnabled(t *testing.T) {
	var s Step
	if err := json.Unmarshal([]byte(`{"step_id":"1","step_type":"read_coords","x":10,"y":20}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.Enabled {
		t.Fatal("enabled should default to true")
	}

	var off Step
	if err := json.Unmarshal([]byte(`{"step_id":"2","step_type":"read_coords","enabled":false}`), &off); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if off.Enabled {
		t.Fatal("explicit enabled=false must survive decode")
	}
}

func TestVisualWorkflowValidate(t *testing.T) {
	wf := VisualWorkflow{
		WorkflowID: "excel_patient_lookup",
		Steps: []Step{
			{StepID: "1", Type: StepReadCoords, Enabled: true, X: 100, Y: 200, OutputVariable: "patient_id"},
			{StepID: "2", Type: StepLookupExcel, Enabled: true, FilePath: "patients.xlsx",
				SearchColumn: "ID", SearchValueVariable: "patient_id",
				ReturnColumns: []string{"Name", "Dx"}, OutputVariable: "data"},
			{StepID: "3", Type: StepWriteCoords, Enabled: true, X: 400, Y: 350,
				ContentTemplate: "Name: {data.Name}"},
		},
	}
	if err := wf.Validate(nil); err != nil {
		t.Fatalf("valid workflow rejected: %v", err)
	}
}

func TestVisualWorkflowValidateUndefinedVariable(t *testing.T) {
	wf := VisualWorkflow{
		WorkflowID: "bad",
		Steps: []Step{
			{StepID: "1", Type: StepLookupExcel, Enabled: true,
				SearchColumn: "ID", SearchValueVariable: "patient_id",
				ReturnColumns: []string{"Name"}, OutputVariable: "data"},
		},
	}
	if err := wf.Validate(nil); err == nil {
		t.Fatal("expected undefined search_value_variable to be rejected")
	}
	// The same reference is fine when supplied as an initial variable.
	if err := wf.Validate([]string{"patient_id"}); err != nil {
		t.Fatalf("initial variable should satisfy the reference: %v", err)
	}
}

func TestVisualWorkflowValidateDisabledProducer(t *testing.T) {
	wf := VisualWorkflow{
		WorkflowID: "disabled_producer",
		Steps: []Step{
			{StepID: "1", Type: StepReadCoords, Enabled: false, OutputVariable: "patient_id"},
			{StepID: "2", Type: StepLookupExcel, Enabled: true,
				SearchColumn: "ID", SearchValueVariable: "patient_id",
				ReturnColumns: []string{"Name"}, OutputVariable: "data"},
		},
	}
	if err := wf.Validate(nil); err == nil {
		t.Fatal("a disabled step must not count as a variable producer")
	}
}

func TestVisualWorkflowValidateDuplicateStepID(t *testing.T) {
	wf := VisualWorkflow{
		WorkflowID: "dup",
		Steps: []Step{
			{StepID: "1", Type: StepRecordAudio, Enabled: true, OutputVariable: "a"},
			{StepID: "1", Type: StepRecordAudio, Enabled: true, OutputVariable: "b"},
		},
	}
	if err := wf.Validate(nil); err == nil {
		t.Fatal("expected duplicate step_id to be rejected")
	}
}
