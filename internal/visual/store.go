// Package visual owns the visual workflow store and the step interpreter.
// Workflows live in a single JSON file; the interpreter runs their steps
// server-side against a DesktopIO capability and the agent callback.
package visual

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chartbridge/chartbridge/internal/schema"
)

var (
	ErrNotFound  = errors.New("visual workflow not found")
	ErrDuplicate = errors.New("visual workflow id already exists")
)

// initialVars are the environment bindings a caller may supply at execution
// time; stored workflows may reference them without defining them.
var initialVars = []string{"transcription"}

// Store persists visual workflows in one JSON file (an array). Reads and
// read-modify-write cycles are serialized by a mutex; rewrites go through a
// temp file and rename so a crash never leaves a half-written store.
type Store struct {
	mu   sync.Mutex
	path string
}

// OpenStore loads or creates the store file at path.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		if err := s.write(nil); err != nil {
			return nil, err
		}
	} else if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) read() ([]schema.VisualWorkflow, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow store: %w", err)
	}
	var workflows []schema.VisualWorkflow
	if err := json.Unmarshal(raw, &workflows); err != nil {
		return nil, fmt.Errorf("parsing workflow store: %w", err)
	}
	return workflows, nil
}

func (s *Store) write(workflows []schema.VisualWorkflow) error {
	if workflows == nil {
		workflows = []schema.VisualWorkflow{}
	}
	raw, err := json.MarshalIndent(workflows, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding workflow store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing workflow store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing workflow store: %w", err)
	}
	return nil
}

// List returns all stored workflows.
func (s *Store) List() ([]schema.VisualWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Get returns one workflow by id.
func (s *Store) Get(id string) (schema.VisualWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	workflows, err := s.read()
	if err != nil {
		return schema.VisualWorkflow{}, err
	}
	for _, wf := range workflows {
		if wf.WorkflowID == id {
			return wf, nil
		}
	}
	return schema.VisualWorkflow{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create validates and appends a new workflow. Duplicate ids are rejected.
func (s *Store) Create(wf schema.VisualWorkflow) (schema.VisualWorkflow, error) {
	if err := validateWorkflow(&wf); err != nil {
		return schema.VisualWorkflow{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	workflows, err := s.read()
	if err != nil {
		return schema.VisualWorkflow{}, err
	}
	for _, existing := range workflows {
		if existing.WorkflowID == wf.WorkflowID {
			return schema.VisualWorkflow{}, fmt.Errorf("%w: %s", ErrDuplicate, wf.WorkflowID)
		}
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if err := s.write(append(workflows, wf)); err != nil {
		return schema.VisualWorkflow{}, err
	}
	return wf, nil
}

// Update validates and replaces the workflow with the same id, stamping
// updated_at.
func (s *Store) Update(id string, wf schema.VisualWorkflow) (schema.VisualWorkflow, error) {
	wf.WorkflowID = id
	if err := validateWorkflow(&wf); err != nil {
		return schema.VisualWorkflow{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	workflows, err := s.read()
	if err != nil {
		return schema.VisualWorkflow{}, err
	}
	for i, existing := range workflows {
		if existing.WorkflowID == id {
			wf.CreatedAt = existing.CreatedAt
			wf.UpdatedAt = time.Now().UTC()
			workflows[i] = wf
			if err := s.write(workflows); err != nil {
				return schema.VisualWorkflow{}, err
			}
			return wf, nil
		}
	}
	return schema.VisualWorkflow{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the workflow with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	workflows, err := s.read()
	if err != nil {
		return err
	}
	for i, existing := range workflows {
		if existing.WorkflowID == id {
			return s.write(append(workflows[:i], workflows[i+1:]...))
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// validateWorkflow runs both the JSON Schema check and the structural
// def-before-use check.
func validateWorkflow(wf *schema.VisualWorkflow) error {
	if err := validateAgainstSchema(wf); err != nil {
		return err
	}
	return wf.Validate(initialVars)
}
