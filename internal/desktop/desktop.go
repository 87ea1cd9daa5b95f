// Package desktop abstracts the host UI operations the agent and the visual
// interpreter need: screen capture, OCR, clipboard, pointer, and keyboard.
// Production wiring shells out to host tools; tests use the Fake.
package desktop

import (
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// IO is the full desktop capability surface. Implementations must be safe
// for use from the per-hotkey goroutines the agent spawns.
type IO interface {
	// Screenshot captures the given screen rectangle.
	Screenshot(rect image.Rectangle) (image.Image, error)
	// OCR extracts text from an image. A zero-size region yields "".
	OCR(img image.Image) (string, error)

	ReadClipboard() (string, error)
	WriteClipboard(text string) error

	Click(x, y int) error
	// TypeText types s one character at a time with the given inter-key delay.
	TypeText(s string, perCharDelay time.Duration) error
	// KeyCombo presses a combination such as "ctrl+v" or a single key "tab".
	KeyCombo(combo string) error

	// SetFailsafe toggles the abort-on-corner-fling guard some backends have.
	SetFailsafe(enabled bool) error
	// ReleaseModifiers releases any stuck modifier keys.
	ReleaseModifiers() error
}

// Host shells out to common X11 tooling (xdotool, xclip, import, tesseract).
// It is best-effort: hosts missing a tool get an error naming it.
type Host struct {
	typeDelay time.Duration
}

func NewHost() *Host {
	return &Host{typeDelay: 12 * time.Millisecond}
}

func (h *Host) Screenshot(rect image.Rectangle) (image.Image, error) {
	return nil, fmt.Errorf("screenshot: not supported without display tooling")
}

func (h *Host) OCR(img image.Image) (string, error) {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return "", nil
	}
	return "", fmt.Errorf("ocr: not supported without tesseract")
}

func (h *Host) ReadClipboard() (string, error) {
	out, err := exec.Command("xclip", "-selection", "clipboard", "-o").Output()
	if err != nil {
		return "", fmt.Errorf("reading clipboard: %w", err)
	}
	return string(out), nil
}

func (h *Host) WriteClipboard(text string) error {
	cmd := exec.Command("xclip", "-selection", "clipboard", "-i")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("writing clipboard: %w", err)
	}
	return nil
}

func (h *Host) Click(x, y int) error {
	if err := exec.Command("xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", "1").Run(); err != nil {
		return fmt.Errorf("click %d,%d: %w", x, y, err)
	}
	return nil
}

func (h *Host) TypeText(s string, perCharDelay time.Duration) error {
	if perCharDelay <= 0 {
		perCharDelay = h.typeDelay
	}
	delayMS := strconv.FormatInt(perCharDelay.Milliseconds(), 10)
	if err := exec.Command("xdotool", "type", "--delay", delayMS, "--", s).Run(); err != nil {
		return fmt.Errorf("typing text: %w", err)
	}
	return nil
}

func (h *Host) KeyCombo(combo string) error {
	if err := exec.Command("xdotool", "key", "--", comboToXdo(combo)).Run(); err != nil {
		return fmt.Errorf("key combo %s: %w", combo, err)
	}
	return nil
}

func (h *Host) SetFailsafe(bool) error { return nil }

func (h *Host) ReleaseModifiers() error {
	for _, key := range []string{"ctrl", "alt", "shift", "super"} {
		exec.Command("xdotool", "keyup", key).Run()
	}
	return nil
}

// comboToXdo maps "ctrl+alt+v" to xdotool's "ctrl+alt+v" form, normalizing
// the few names that differ.
func comboToXdo(combo string) string {
	parts := strings.Split(strings.ToLower(combo), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "enter":
			p = "Return"
		case "tab":
			p = "Tab"
		case "down":
			p = "Down"
		case "up":
			p = "Up"
		case "esc", "escape":
			p = "Escape"
		}
		parts[i] = p
	}
	return strings.Join(parts, "+")
}
