package visual

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
)

// writePatientsWorkbook builds the xlsx fixture the lookup steps read.
func writePatientsWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patients.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"ID", "Name", "Dx"},
		{"003", "Bob", "Asthma"},
		{"007", "Alice", "Pneumonia"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunVisualHappyPath(t *testing.T) {
	workbook := writePatientsWorkbook(t)

	var callback schema.WriteCoordsRequest
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute/write_coords" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&callback)
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer agent.Close()

	io := desktop.NewFake()
	io.OCRText["100,200,300,250"] = "ID: 007X"

	x := NewExecutor(io, agent.URL, nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "patient_lookup",
		Name:       "Patient lookup",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepReadCoords, Enabled: true,
				X: 100, Y: 200, Width: 200, Height: 50,
				ExtractNumbers: true, OutputVariable: "patient_id"},
			{StepID: "s2", Type: schema.StepLookupExcel, Enabled: true,
				FilePath: workbook, SearchColumn: "ID",
				SearchValueVariable: "patient_id",
				ReturnColumns:       []string{"Name", "Dx"},
				OutputVariable:      "data"},
			{StepID: "s3", Type: schema.StepWriteCoords, Enabled: true,
				X: 400, Y: 350,
				ContentTemplate: "Name: {data.Name} Dx: {data.Dx}",
				InsertMethod:    "paste"},
		},
	}

	res := x.Run(context.Background(), wf, nil)
	if res.Status != "success" {
		t.Fatalf("result = %+v", res)
	}
	if res.Variables["patient_id"] != "007" {
		t.Errorf("patient_id = %v", res.Variables["patient_id"])
	}
	if callback.X != 400 || callback.Y != 350 {
		t.Errorf("callback coords = %d,%d", callback.X, callback.Y)
	}
	if callback.Content != "Name: Alice Dx: Pneumonia" {
		t.Errorf("callback content = %q", callback.Content)
	}
	if callback.InsertMethod != "paste" {
		t.Errorf("insert_method = %q", callback.InsertMethod)
	}
}

func TestRunShortCircuitsOnFirstError(t *testing.T) {
	io := desktop.NewFake()
	// No OCR text scripted: read_coords fails.

	x := NewExecutor(io, "http://localhost:1", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepTranscribeAudio, Enabled: true, OutputVariable: "note"},
			{StepID: "s2", Type: schema.StepReadCoords, Enabled: true,
				X: 0, Y: 0, Width: 10, Height: 10, OutputVariable: "text"},
			{StepID: "s3", Type: schema.StepWriteCoords, Enabled: true,
				X: 1, Y: 1, ContentTemplate: "{text}"},
		},
	}

	res := x.Run(context.Background(), wf, map[string]any{"transcription": "dictated note"})
	if res.Status != "error" {
		t.Fatalf("result = %+v", res)
	}
	if res.FailedStep != "s2" || res.ErrorCode != CodeNoTextFound {
		t.Errorf("failure = %s/%s", res.FailedStep, res.ErrorCode)
	}
	if res.Variables["note"] != "dictated note" {
		t.Errorf("variables accumulated before failure must survive: %v", res.Variables)
	}
	if res.StepsRun != 1 {
		t.Errorf("steps_run = %d", res.StepsRun)
	}
}

func TestRunSkipsDisabledSteps(t *testing.T) {
	io := desktop.NewFake()
	x := NewExecutor(io, "http://localhost:1", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepReadCoords, Enabled: false,
				X: 0, Y: 0, Width: 10, Height: 10, OutputVariable: "text"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.Status != "success" || res.StepsRun != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunReleasesModifiersOnFailure(t *testing.T) {
	io := desktop.NewFake()
	x := NewExecutor(io, "http://localhost:1", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepLookupDB, Enabled: true, OutputVariable: "v"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.ErrorCode != CodeNotImplemented {
		t.Fatalf("result = %+v", res)
	}

	ops := io.OpLog()
	released := 0
	for _, op := range ops {
		if op == "release_modifiers" {
			released++
		}
	}
	if released < 2 {
		t.Fatalf("modifiers must be released pre and post, ops = %v", ops)
	}
	if ops[0] != "failsafe off" {
		t.Errorf("failsafe must be disabled first, ops = %v", ops)
	}
}

func TestReadCoordsNumberExtraction(t *testing.T) {
	io := desktop.NewFake()
	io.OCRText["0,0,10,10"] = "Room A-12 bed 34"
	x := NewExecutor(io, "", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepReadCoords, Enabled: true,
				X: 0, Y: 0, Width: 10, Height: 10,
				ExtractNumbers: true, OutputVariable: "num"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.Status != "success" || res.Variables["num"] != "12" {
		t.Fatalf("result = %+v", res)
	}
}

func TestReadCoordsNoNumbers(t *testing.T) {
	io := desktop.NewFake()
	io.OCRText["0,0,10,10"] = "no digits here"
	x := NewExecutor(io, "", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepReadCoords, Enabled: true,
				X: 0, Y: 0, Width: 10, Height: 10,
				ExtractNumbers: true, OutputVariable: "num"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.ErrorCode != CodeNoNumbersFound {
		t.Fatalf("result = %+v", res)
	}
}

func TestLookupExcelFailures(t *testing.T) {
	workbook := writePatientsWorkbook(t)
	io := desktop.NewFake()
	x := NewExecutor(io, "", nil, nil)

	cases := []struct {
		name string
		step schema.Step
		code string
	}{
		{"missing file",
			schema.Step{StepID: "s1", Type: schema.StepLookupExcel, Enabled: true,
				FilePath: "absent.xlsx", SearchColumn: "ID",
				SearchValueVariable: "q", ReturnColumns: []string{"Name"},
				OutputVariable: "data"},
			CodeFileNotFound},
		{"unknown column",
			schema.Step{StepID: "s1", Type: schema.StepLookupExcel, Enabled: true,
				FilePath: workbook, SearchColumn: "SSN",
				SearchValueVariable: "q", ReturnColumns: []string{"Name"},
				OutputVariable: "data"},
			CodeUnknownColumn},
		{"no match",
			schema.Step{StepID: "s1", Type: schema.StepLookupExcel, Enabled: true,
				FilePath: workbook, SearchColumn: "ID",
				SearchValueVariable: "q", ReturnColumns: []string{"Name"},
				OutputVariable: "data"},
			CodeNoMatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := &schema.VisualWorkflow{WorkflowID: "wf", Steps: []schema.Step{tc.step}}
			res := x.Run(context.Background(), wf, map[string]any{"q": "zzz"})
			if res.ErrorCode != tc.code {
				t.Fatalf("code = %s, want %s (%+v)", res.ErrorCode, tc.code, res)
			}
		})
	}
}

func TestWriteCoordsAgentUnreachable(t *testing.T) {
	io := desktop.NewFake()
	x := NewExecutor(io, "http://127.0.0.1:1", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepWriteCoords, Enabled: true,
				X: 1, Y: 1, ContentTemplate: "x"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.ErrorCode != CodeAgentUnreachable {
		t.Fatalf("result = %+v", res)
	}
}

func TestTranscribeAudioWithoutTranscriptionFails(t *testing.T) {
	io := desktop.NewFake()
	x := NewExecutor(io, "", nil, nil)
	wf := &schema.VisualWorkflow{
		WorkflowID: "wf",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepTranscribeAudio, Enabled: true, OutputVariable: "note"},
		},
	}
	res := x.Run(context.Background(), wf, nil)
	if res.ErrorCode != CodeNoTranscription {
		t.Fatalf("result = %+v", res)
	}
}
