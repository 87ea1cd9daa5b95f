package agent

import (
	"os/exec"
	"strconv"
	"strings"
)

// pointerPosition reads the mouse location, best-effort. Output format from
// xdotool is "x:400 y:650 screen:0 window:1234".
func pointerPosition() (int, int) {
	out, err := exec.Command("xdotool", "getmouselocation").Output()
	if err != nil {
		return 0, 0
	}
	var x, y int
	for _, field := range strings.Fields(string(out)) {
		if v, found := strings.CutPrefix(field, "x:"); found {
			x, _ = strconv.Atoi(v)
		}
		if v, found := strings.CutPrefix(field, "y:"); found {
			y, _ = strconv.Atoi(v)
		}
	}
	return x, y
}
