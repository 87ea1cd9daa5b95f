// Package agent is the desktop-side dispatcher: it listens for global
// hotkeys, captures context, calls the orchestration server, runs the
// returned insertion instructions, and serves the local write_coords
// callback for the visual interpreter.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chartbridge/chartbridge/internal/desktop"
	"github.com/chartbridge/chartbridge/internal/schema"
)

// State is the agent root state.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StatePicking      State = "picking"
	StateShuttingDown State = "shutting_down"
)

// Config holds agent configuration.
type Config struct {
	ServerURL    string
	Token        string
	CallbackAddr string
	PickerHotkey string
	UserID       string
}

// Agent wires the listeners, the capture/insert pipeline, and the callback
// server. The listener loop never blocks: every key press handles on a
// fresh goroutine.
type Agent struct {
	config   Config
	client   *Client
	io       desktop.IO
	hook     HotkeyHook
	inserter *Inserter
	callback *CallbackServer
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	picking string // field being picked, when state == StatePicking

	handlers sync.WaitGroup
}

func New(cfg Config, io desktop.IO, hook HotkeyHook) *Agent {
	if cfg.PickerHotkey == "" {
		cfg.PickerHotkey = "CTRL+ALT+P"
	}
	logger := log.New(os.Stderr, "[chartbridge-agent] ", log.LstdFlags)
	a := &Agent{
		config:   cfg,
		client:   NewClient(cfg.ServerURL, cfg.Token),
		io:       io,
		hook:     hook,
		inserter: NewInserter(io),
		logger:   logger,
		state:    StateInitializing,
	}
	a.callback = NewCallbackServer(cfg.CallbackAddr, a.inserter, logger)
	return a
}

// State returns the current root state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Run brings the agent up and blocks until the context is cancelled or a
// termination signal arrives.
func (a *Agent) Run(ctx context.Context) error {
	if _, err := a.client.Health(ctx); err != nil {
		return fmt.Errorf("server health check failed: %w", err)
	}

	if err := a.registerHotkeys(ctx); err != nil {
		return err
	}
	a.setState(StateReady)
	a.logger.Printf("ready; server %s", a.config.ServerURL)

	errCh := make(chan error, 1)
	go func() { errCh <- a.callback.ListenAndServe() }()
	go a.hook.RunUntilStop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		a.logger.Printf("received %s, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			a.setState(StateShuttingDown)
			a.hook.Stop()
			return fmt.Errorf("callback server: %w", err)
		}
	}

	a.setState(StateShuttingDown)
	a.hook.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.callback.Shutdown(shutdownCtx)
	a.handlers.Wait()
	return nil
}

// registerHotkeys builds the three listener tables: declarative workflows,
// visual workflows, and the picker combo.
func (a *Agent) registerHotkeys(ctx context.Context) error {
	workflows, err := a.client.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("fetching workflows: %w", err)
	}
	for _, wf := range workflows {
		if !wf.Enabled || wf.Hotkey == "" {
			continue
		}
		hotkey := schema.NormalizeHotkey(wf.Hotkey)
		if err := a.hook.Register(hotkey, func() { a.dispatch(a.handleTrigger, hotkey) }); err != nil {
			return fmt.Errorf("registering %s: %w", hotkey, err)
		}
	}

	visuals, err := a.client.VisualWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("fetching visual workflows: %w", err)
	}
	for _, wf := range visuals {
		if !wf.Enabled || wf.Hotkey == "" {
			continue
		}
		id := wf.WorkflowID
		hotkey := schema.NormalizeHotkey(wf.Hotkey)
		if err := a.hook.Register(hotkey, func() { a.dispatch(func(string) { a.handleVisual(id) }, hotkey) }); err != nil {
			return fmt.Errorf("registering %s: %w", hotkey, err)
		}
	}

	picker := schema.NormalizeHotkey(a.config.PickerHotkey)
	return a.hook.Register(picker, func() { a.dispatch(func(string) { a.handlePicker() }, picker) })
}

// dispatch runs a handler on its own goroutine so the hook loop stays free.
func (a *Agent) dispatch(handler func(string), hotkey string) {
	a.handlers.Add(1)
	go func() {
		defer a.handlers.Done()
		handler(hotkey)
	}()
}

func (a *Agent) handleTrigger(hotkey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	captured := capture(a.io, hotkey, a.config.UserID)
	resp, err := a.client.Trigger(ctx, hotkey, captured)
	if err != nil {
		a.logger.Printf("trigger %s: %v", hotkey, err)
		return
	}
	if resp.Status != "success" {
		a.logger.Printf("trigger %s: workflow %s failed: %s", hotkey, resp.WorkflowID, resp.ErrorMessage)
		return
	}
	for _, instr := range resp.Insertions {
		if err := a.inserter.Apply(instr); err != nil {
			a.logger.Printf("inserting into %s: %v", instr.TargetField, err)
			return
		}
	}
	a.logger.Printf("workflow %s: %d insertions applied", resp.WorkflowID, len(resp.Insertions))
}

func (a *Agent) handleVisual(workflowID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := a.client.ExecuteVisual(ctx, workflowID, nil); err != nil {
		a.logger.Printf("visual workflow %s: %v", workflowID, err)
	}
}

// handlePicker reports the current pointer position to the server. The
// transition Picking→Ready happens as soon as the report lands.
func (a *Agent) handlePicker() {
	a.setState(StatePicking)
	defer a.setState(StateReady)

	x, y := pointerPosition()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.client.ReportPickerCoordinates(ctx, x, y); err != nil {
		a.logger.Printf("picker report: %v", err)
	}
}
