package agent

import (
	"os/exec"
	"strings"
	"time"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
)

// capture assembles the Context snapshot sent with a trigger. The clipboard
// is read as-is; selection capture copies the selection through the
// clipboard and restores the original value afterwards.
func capture(io desktop.IO, hotkey, userID string) schema.Context {
	now := time.Now().UTC()
	ctx := schema.Context{
		Hotkey:      hotkey,
		UserID:      userID,
		WindowTitle: activeWindowTitle(),
		Timestamp:   &now,
	}

	original, err := io.ReadClipboard()
	if err == nil {
		ctx.ClipboardText = original
	}

	// Copy the current selection, read it, then put the clipboard back. The
	// post-copy read is authoritative even when it equals the prior clipboard:
	// users often copy the selection themselves before pressing the hotkey.
	if err := io.KeyCombo("ctrl+c"); err == nil {
		time.Sleep(150 * time.Millisecond)
		if selected, err := io.ReadClipboard(); err == nil {
			ctx.SelectedText = selected
		}
		io.WriteClipboard(original)
	}
	return ctx
}

// activeWindowTitle is best-effort; hosts without xdotool report "".
func activeWindowTitle() string {
	out, err := exec.Command("xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
