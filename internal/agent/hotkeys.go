package agent

import "sync"

// HotkeyHook abstracts the OS-global hotkey facility. Platform
// implementations vary; the dispatcher only needs these three operations.
type HotkeyHook interface {
	// Register binds a handler to a combo like "CTRL+ALT+V". Handlers are
	// invoked from the hook's own loop and must return quickly.
	Register(combo string, handler func()) error
	// RunUntilStop blocks, delivering key events, until Stop is called.
	RunUntilStop()
	Stop()
}

// NoopHook is the fallback for hosts without a global-hotkey facility: it
// registers everything and blocks until stopped. Triggering then happens
// only through the callback server or the HTTP API.
type NoopHook struct {
	once sync.Once
	stop chan struct{}
}

func NewNoopHook() *NoopHook {
	return &NoopHook{stop: make(chan struct{})}
}

func (h *NoopHook) Register(string, func()) error { return nil }

func (h *NoopHook) RunUntilStop() { <-h.stop }

func (h *NoopHook) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// FakeHook is a scriptable hook for tests: Press delivers a combo to its
// registered handler synchronously.
type FakeHook struct {
	mu       sync.Mutex
	handlers map[string]func()
	stop     chan struct{}
	once     sync.Once
}

func NewFakeHook() *FakeHook {
	return &FakeHook{handlers: map[string]func(){}, stop: make(chan struct{})}
}

func (h *FakeHook) Register(combo string, handler func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[combo] = handler
	return nil
}

func (h *FakeHook) RunUntilStop() { <-h.stop }

func (h *FakeHook) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Press fires the handler registered for combo, if any.
func (h *FakeHook) Press(combo string) bool {
	h.mu.Lock()
	handler := h.handlers[combo]
	h.mu.Unlock()
	if handler == nil {
		return false
	}
	handler()
	return true
}

// Registered lists the registered combos.
func (h *FakeHook) Registered() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.handlers))
	for combo := range h.handlers {
		out = append(out, combo)
	}
	return out
}
