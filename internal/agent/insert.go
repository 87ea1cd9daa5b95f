package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
)

const (
	preInsertPause = 300 * time.Millisecond
	typeDelay      = 12 * time.Millisecond
)

// Inserter performs UI writes. sleep is swapped in tests.
type Inserter struct {
	IO    desktop.IO
	sleep func(time.Duration)
}

func NewInserter(io desktop.IO) *Inserter {
	return &Inserter{IO: io, sleep: time.Sleep}
}

// Apply runs one insertion instruction: pause, optional pre-click, mode
// positioning, paste-or-type insertion, optional navigation.
func (ins *Inserter) Apply(instr schema.InsertionInstruction) error {
	ins.sleep(preInsertPause)

	if instr.ClickBefore != "" {
		x, y, err := parseCoords(instr.ClickBefore)
		if err != nil {
			return fmt.Errorf("click_before: %w", err)
		}
		if err := ins.IO.Click(x, y); err != nil {
			return err
		}
	}

	if err := ins.position(instr.Mode); err != nil {
		return err
	}
	if err := ins.insert(instr.Content, instr.InsertMethod); err != nil {
		return err
	}
	if instr.Mode == "prepend" {
		if err := ins.IO.KeyCombo("enter"); err != nil {
			return err
		}
	}
	return ins.navigate(instr.Navigation)
}

// position prepares the caret for the insertion mode.
func (ins *Inserter) position(mode string) error {
	switch mode {
	case "", "replace":
		// Select everything so the insertion overwrites it.
		return ins.IO.KeyCombo("ctrl+a")
	case "append":
		if err := ins.IO.KeyCombo("ctrl+end"); err != nil {
			return err
		}
		return ins.IO.KeyCombo("enter")
	case "prepend":
		return ins.IO.KeyCombo("ctrl+home")
	default:
		return fmt.Errorf("unknown insertion mode: %s", mode)
	}
}

// insert writes content by paste (clipboard round trip with restore) or by
// per-character typing.
func (ins *Inserter) insert(content, method string) error {
	switch method {
	case "", "paste":
		original, readErr := ins.IO.ReadClipboard()
		if err := ins.IO.WriteClipboard(content); err != nil {
			return err
		}
		if err := ins.IO.KeyCombo("ctrl+v"); err != nil {
			return err
		}
		ins.sleep(100 * time.Millisecond)
		if readErr == nil {
			return ins.IO.WriteClipboard(original)
		}
		return nil
	case "type":
		return ins.IO.TypeText(content, typeDelay)
	default:
		return fmt.Errorf("unknown insert method: %s", method)
	}
}

// navigate executes a post-insert key sequence: "tab_N", "down_N", "enter",
// or several of those separated by commas.
func (ins *Inserter) navigate(nav string) error {
	if nav == "" {
		return nil
	}
	for _, part := range strings.Split(nav, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, count, err := parseNavigation(part)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if err := ins.IO.KeyCombo(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseNavigation(part string) (key string, count int, err error) {
	switch {
	case part == "enter":
		return "enter", 1, nil
	case strings.HasPrefix(part, "tab_"):
		n, err := strconv.Atoi(part[len("tab_"):])
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("bad navigation step: %s", part)
		}
		return "tab", n, nil
	case strings.HasPrefix(part, "down_"):
		n, err := strconv.Atoi(part[len("down_"):])
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("bad navigation step: %s", part)
		}
		return "down", n, nil
	default:
		return "", 0, fmt.Errorf("unknown navigation step: %s", part)
	}
}

func parseCoords(s string) (int, int, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected x,y: %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad x in %q", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad y in %q", s)
	}
	return x, y, nil
}
