package agent

import (
	"errors"
	"testing"

	"github.com/chartbridge/chartbridge/internal/desktop"
)

func TestCaptureUsesPreCopiedSelection(t *testing.T) {
	io := desktop.NewFake()
	io.Clipboard = "Patient presents with cough"

	got := capture(io, "CTRL+ALT+V", "u1")

	if got.SelectedText != "Patient presents with cough" {
		t.Fatalf("selected_text = %q, want the pre-copied clipboard text", got.SelectedText)
	}
	if got.ClipboardText != "Patient presents with cough" {
		t.Errorf("clipboard_text = %q", got.ClipboardText)
	}
	if got.Hotkey != "CTRL+ALT+V" || got.UserID != "u1" {
		t.Errorf("context = %+v", got)
	}
	if io.Clipboard != "Patient presents with cough" {
		t.Errorf("clipboard = %q, want restored", io.Clipboard)
	}
}

func TestCaptureClipboardReadFailure(t *testing.T) {
	io := desktop.NewFake()
	io.ClipboardErr = errors.New("clipboard unavailable")

	got := capture(io, "CTRL+ALT+V", "u1")
	if got.SelectedText != "" || got.ClipboardText != "" {
		t.Fatalf("context = %+v, want empty text fields", got)
	}
}
