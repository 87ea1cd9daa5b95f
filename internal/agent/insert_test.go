package agent

import (
	"reflect"
	"testing"
	"time"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
)

func quietInserter(io desktop.IO) *Inserter {
	ins := NewInserter(io)
	ins.sleep = func(time.Duration) {}
	return ins
}

func TestApplyReplacePasteRestoresClipboard(t *testing.T) {
	io := desktop.NewFake()
	io.Clipboard = "original clipboard"

	ins := quietInserter(io)
	err := ins.Apply(schema.InsertionInstruction{
		TargetField: "Assessment",
		Content:     "Pneumonia",
		Mode:        "replace",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if io.Clipboard != "original clipboard" {
		t.Fatalf("clipboard = %q, want restored original", io.Clipboard)
	}
	want := []string{
		"key ctrl+a",
		"read_clipboard",
		"write_clipboard Pneumonia",
		"key ctrl+v",
		"write_clipboard original clipboard",
	}
	if got := io.OpLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
}

func TestApplyAppendAndPrepend(t *testing.T) {
	io := desktop.NewFake()
	ins := quietInserter(io)

	if err := ins.Apply(schema.InsertionInstruction{Content: "tail", Mode: "append", InsertMethod: "type"}); err != nil {
		t.Fatal(err)
	}
	if err := ins.Apply(schema.InsertionInstruction{Content: "head", Mode: "prepend", InsertMethod: "type"}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"key ctrl+end", "key enter", "type tail",
		"key ctrl+home", "type head", "key enter",
	}
	if got := io.OpLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
}

func TestApplyClickBeforeAndNavigation(t *testing.T) {
	io := desktop.NewFake()
	ins := quietInserter(io)

	err := ins.Apply(schema.InsertionInstruction{
		Content:      "x",
		Mode:         "replace",
		InsertMethod: "type",
		ClickBefore:  "120, 45",
		Navigation:   "tab_2,enter",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"click 120,45",
		"key ctrl+a",
		"type x",
		"key tab", "key tab", "key enter",
	}
	if got := io.OpLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
}

func TestApplyRejectsBadInputs(t *testing.T) {
	io := desktop.NewFake()
	ins := quietInserter(io)

	cases := []schema.InsertionInstruction{
		{Content: "x", Mode: "sideways"},
		{Content: "x", InsertMethod: "telepathy"},
		{Content: "x", ClickBefore: "not-coords"},
		{Content: "x", Navigation: "sideways_3"},
	}
	for _, instr := range cases {
		if err := ins.Apply(instr); err == nil {
			t.Errorf("instruction %+v must be rejected", instr)
		}
	}
}

func TestParseNavigation(t *testing.T) {
	cases := []struct {
		in    string
		key   string
		count int
		ok    bool
	}{
		{"enter", "enter", 1, true},
		{"tab_3", "tab", 3, true},
		{"down_1", "down", 1, true},
		{"tab_0", "", 0, false},
		{"tab_x", "", 0, false},
		{"left_2", "", 0, false},
	}
	for _, tc := range cases {
		key, count, err := parseNavigation(tc.in)
		if tc.ok && (err != nil || key != tc.key || count != tc.count) {
			t.Errorf("parseNavigation(%q) = %q,%d,%v", tc.in, key, count, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("parseNavigation(%q) should fail", tc.in)
		}
	}
}
