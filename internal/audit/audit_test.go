package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func openTemp(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestExecutionEntriesAreAppendedAsJSONL(t *testing.T) {
	l, path := openTemp(t)

	l.Startup()
	l.Execution("summarize_note", "dr.smith", "icd10_api", StatusSuccess, 1240, "")
	l.Execution("summarize_note", "dr.smith", "icd10_api", StatusError, 30000, "TIMEOUT")
	l.Shutdown()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line not JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if entries[0].Event != "startup" || entries[3].Event != "shutdown" {
		t.Errorf("lifecycle events missing: %+v", entries)
	}
	exec := entries[1]
	if exec.WorkflowID != "summarize_note" || exec.Status != StatusSuccess || exec.ExecutionTimeMS != 1240 {
		t.Errorf("execution entry = %+v", exec)
	}
	if exec.ID == "" || exec.Timestamp == "" {
		t.Errorf("entry missing id/timestamp: %+v", exec)
	}
	if entries[2].ErrorCode != "TIMEOUT" {
		t.Errorf("error code = %q", entries[2].ErrorCode)
	}
}

func TestEntriesNeverCarryClinicalText(t *testing.T) {
	l, path := openTemp(t)

	clinical := "Patient presents with fever and productive cough"
	l.Execution("summarize_note", "dr.smith", "icd10_api", StatusSuccess, 900, "")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), clinical) {
		t.Fatal("clinical text leaked into audit log")
	}
	if strings.Contains(string(raw), "dr.smith") {
		t.Fatal("raw user id leaked into audit log")
	}

	// The Entry type itself admits no free-text payload fields.
	for _, forbidden := range []string{"Content", "Text", "Input", "Payload", "Body"} {
		if _, found := reflect.TypeOf(Entry{}).FieldByName(forbidden); found {
			t.Errorf("Entry must not carry a %s field", forbidden)
		}
	}
}

func TestHashUserID(t *testing.T) {
	a := HashUserID("dr.smith")
	b := HashUserID("dr.smith")
	c := HashUserID("dr.jones")
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == c {
		t.Error("distinct ids must not collide trivially")
	}
	if len(a) != 24 {
		t.Errorf("hash length = %d, want 24 hex chars", len(a))
	}
	if strings.Contains(a, "dr.smith") {
		t.Error("hash must be opaque")
	}
	if HashUserID("") != "anonymous" {
		t.Error("empty id maps to anonymous")
	}
}

func TestRecentRing(t *testing.T) {
	l, _ := openTemp(t)
	for i := 0; i < 300; i++ {
		l.Execution("wf", "u", "c", StatusSuccess, int64(i), "")
	}
	all := l.Recent(0)
	if len(all) != 256 {
		t.Fatalf("ring size = %d, want 256", len(all))
	}
	last := l.Recent(5)
	if len(last) != 5 {
		t.Fatalf("Recent(5) = %d entries", len(last))
	}
	if last[4].ExecutionTimeMS != 299 {
		t.Errorf("newest entry = %+v", last[4])
	}
}
