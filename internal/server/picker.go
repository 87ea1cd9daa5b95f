package server

import (
	"fmt"
	"sync"
	"time"
)

// Coordinates is a reported screen position.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PickerSession tracks one dashboard-driven coordinate pick.
type PickerSession struct {
	SessionID   string       `json:"session_id"`
	FieldName   string       `json:"field_name"`
	Status      string       `json:"status"` // waiting, completed
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	ActivatedAt time.Time    `json:"activated_at"`
}

// PickerSessions is the session map plus the single "current" pointer the
// agent's coordinate reports bind to. A second activation moves the pointer;
// the dashboard drives the choreography, so stale sessions are harmless.
// Accessors return snapshot copies: the status poll and the coordinate report
// run concurrently, so live session state never leaves the lock. Coordinates
// values are never mutated after assignment, only replaced.
type PickerSessions struct {
	mu       sync.Mutex
	sessions map[string]*PickerSession
	current  string
}

func NewPickerSessions() *PickerSessions {
	return &PickerSessions{sessions: map[string]*PickerSession{}}
}

// Activate begins a session and marks it current.
func (p *PickerSessions) Activate(sessionID, fieldName string) (PickerSession, error) {
	if sessionID == "" {
		return PickerSession{}, fmt.Errorf("session_id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := &PickerSession{
		SessionID:   sessionID,
		FieldName:   fieldName,
		Status:      "waiting",
		ActivatedAt: time.Now().UTC(),
	}
	p.sessions[sessionID] = sess
	p.current = sessionID
	return *sess, nil
}

// Report binds coordinates to the current session. Reports with no current
// session are dropped with an error, not queued.
func (p *PickerSessions) Report(x, y int) (PickerSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return PickerSession{}, fmt.Errorf("no active picker session")
	}
	sess, found := p.sessions[p.current]
	if !found {
		return PickerSession{}, fmt.Errorf("no active picker session")
	}
	sess.Coordinates = &Coordinates{X: x, Y: y}
	sess.Status = "completed"
	p.current = ""
	return *sess, nil
}

// Status returns a session by id.
func (p *PickerSessions) Status(sessionID string) (PickerSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, found := p.sessions[sessionID]
	if !found {
		return PickerSession{}, fmt.Errorf("unknown picker session: %s", sessionID)
	}
	return *sess, nil
}
