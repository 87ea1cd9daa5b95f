package visual

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chartbridge/chartbridge/internal/schema"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "workflows.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func sampleWorkflow(id string) schema.VisualWorkflow {
	return schema.VisualWorkflow{
		WorkflowID: id,
		Name:       "Patient lookup",
		Hotkey:     "ctrl+alt+p",
		Enabled:    true,
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepReadCoords, Enabled: true,
				X: 100, Y: 200, Width: 200, Height: 50,
				ExtractNumbers: true, OutputVariable: "patient_id"},
			{StepID: "s2", Type: schema.StepWriteCoords, Enabled: true,
				X: 400, Y: 350, ContentTemplate: "ID: {patient_id}", InsertMethod: "paste"},
		},
	}
}

func TestStoreCreateThenGetRoundTrips(t *testing.T) {
	s := openStore(t)

	created, err := s.Create(sampleWorkflow("wf1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}

	got, err := s.Get("wf1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WorkflowID != "wf1" || got.Name != created.Name || len(got.Steps) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Steps[0].ExtractNumbers != true || got.Steps[1].ContentTemplate != "ID: {patient_id}" {
		t.Fatalf("steps mismatch: %+v", got.Steps)
	}
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	s := openStore(t)
	if _, err := s.Create(sampleWorkflow("wf1")); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create(sampleWorkflow("wf1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestStoreUpdateStampsUpdatedAt(t *testing.T) {
	s := openStore(t)
	created, err := s.Create(sampleWorkflow("wf1"))
	if err != nil {
		t.Fatal(err)
	}

	wf := sampleWorkflow("wf1")
	wf.Name = "Renamed"
	updated, err := s.Update("wf1", wf)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("name = %s", updated.Name)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("created_at must be preserved across updates")
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Error("updated_at must move forward")
	}
}

func TestStoreDelete(t *testing.T) {
	s := openStore(t)
	if _, err := s.Create(sampleWorkflow("wf1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("wf1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("wf1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("wf1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete err = %v", err)
	}
}

func TestStoreRejectsSchemaViolations(t *testing.T) {
	s := openStore(t)

	noName := sampleWorkflow("wf1")
	noName.Name = ""
	if _, err := s.Create(noName); err == nil {
		t.Fatal("empty name must be rejected")
	}

	badMethod := sampleWorkflow("wf2")
	badMethod.Steps[1].InsertMethod = "teleport"
	if _, err := s.Create(badMethod); err == nil {
		t.Fatal("unknown insert method must be rejected")
	}
}

func TestStoreRejectsUseBeforeDefinition(t *testing.T) {
	s := openStore(t)
	wf := schema.VisualWorkflow{
		WorkflowID: "wf1",
		Name:       "broken",
		Steps: []schema.Step{
			{StepID: "s1", Type: schema.StepLookupExcel, Enabled: true,
				FilePath: "p.xlsx", SearchColumn: "ID",
				SearchValueVariable: "never_defined", ReturnColumns: []string{"Name"},
				OutputVariable: "data"},
		},
	}
	if _, err := s.Create(wf); err == nil {
		t.Fatal("undefined input variable must be rejected")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.json")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(sampleWorkflow("wf1")); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list, err := reopened.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("list after reopen = %v, %v", list, err)
	}
}
