package server

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// crashWindow is how soon after spawn an exit counts as a crash on start.
const crashWindow = 1 * time.Second

// AgentStatus is the body of GET /api/agent/status.
type AgentStatus struct {
	Running       bool    `json:"running"`
	PID           int     `json:"pid,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
}

// Supervisor owns the agent child process: spawn with inherited stdio, crash
// detection on start, SIGTERM with a 5 s grace on stop.
type Supervisor struct {
	mu        sync.Mutex
	command   []string
	env       []string
	dir       string
	logger    *log.Logger
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
}

// NewSupervisor builds a supervisor for the given agent command line. env
// entries are appended to the server's environment; dir may be empty.
func NewSupervisor(command []string, env []string, dir string, logger *log.Logger) *Supervisor {
	return &Supervisor{command: command, env: env, dir: dir, logger: logger}
}

// Start spawns the agent. If the child exits within the crash window the
// handle is reset and an error is returned.
func (sv *Supervisor) Start() error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.runningLocked() {
		return fmt.Errorf("agent already running (pid %d)", sv.cmd.Process.Pid)
	}
	if len(sv.command) == 0 {
		return fmt.Errorf("no agent command configured")
	}

	cmd := exec.Command(sv.command[0], sv.command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), sv.env...)
	cmd.Dir = sv.dir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning agent: %w", err)
	}

	// done is closed when the child exits; a closed channel keeps liveness
	// checks repeatable without consuming the exit.
	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		sv.cmd = nil
		sv.done = nil
		return fmt.Errorf("agent crashed on start: %v", waitErr)
	case <-time.After(crashWindow):
	}

	sv.cmd = cmd
	sv.done = done
	sv.startedAt = time.Now()
	if sv.logger != nil {
		sv.logger.Printf("agent started (pid %d)", cmd.Process.Pid)
	}
	return nil
}

// Stop terminates the agent: SIGTERM, wait up to 5 seconds, SIGKILL.
func (sv *Supervisor) Stop() error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.cmd == nil || sv.cmd.Process == nil {
		return nil
	}
	pid := sv.cmd.Process.Pid
	sv.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-sv.done:
	case <-time.After(5 * time.Second):
		sv.cmd.Process.Kill()
		<-sv.done
	}
	if sv.logger != nil {
		sv.logger.Printf("agent stopped (pid %d)", pid)
	}
	sv.cmd = nil
	sv.done = nil
	return nil
}

// Status reports liveness. The pid is probed with signal 0 so a child that
// died outside our Wait still reads as down.
func (sv *Supervisor) Status() AgentStatus {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if !sv.runningLocked() {
		sv.cmd = nil
		sv.done = nil
		return AgentStatus{Running: false}
	}
	return AgentStatus{
		Running:       true,
		PID:           sv.cmd.Process.Pid,
		UptimeSeconds: time.Since(sv.startedAt).Seconds(),
	}
}

func (sv *Supervisor) runningLocked() bool {
	if sv.cmd == nil || sv.cmd.Process == nil {
		return false
	}
	select {
	case <-sv.done:
		// The child exited on its own.
		return false
	default:
	}
	return pidAlive(sv.cmd.Process.Pid)
}

// pidAlive probes a pid with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
