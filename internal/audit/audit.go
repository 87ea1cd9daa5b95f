// Package audit is the append-only execution log. Entries are structurally
// PHI-free: the type admits workflow metadata, timing, and an opaque user
// hash, and nothing else.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"
)

// DefaultPath is used when AUDIT_LOG_PATH is unset.
const DefaultPath = "logs/audit.log"

const recentCap = 256

// Status values recorded per execution.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Entry is one audit record. No free-text fields: error information is a
// machine code, and the user id is an opaque hash.
type Entry struct {
	ID              string `json:"id"`
	Timestamp       string `json:"timestamp"`
	Event           string `json:"event"` // execution, startup, shutdown
	WorkflowID      string `json:"workflow_id,omitempty"`
	UserHash        string `json:"user_hash,omitempty"`
	Connector       string `json:"connector,omitempty"`
	Status          string `json:"status,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// Log appends JSONL entries to a file and keeps a bounded in-memory ring of
// recent entries for the /api/audit/recent endpoint.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	logger  *log.Logger
	entropy *rand.Rand
	recent  []Entry
	now     func() time.Time
}

// Open creates the audit log at path, creating parent directories as needed.
// An empty path falls back to AUDIT_LOG_PATH, then DefaultPath.
func Open(path string, logger *log.Logger) (*Log, error) {
	if path == "" {
		path = os.Getenv("AUDIT_LOG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Log{
		file:    f,
		logger:  logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Execution records one workflow execution.
func (l *Log) Execution(workflowID, userID, connector, status string, executionMS int64, errorCode string) {
	l.append(Entry{
		Event:           "execution",
		WorkflowID:      workflowID,
		UserHash:        HashUserID(userID),
		Connector:       connector,
		Status:          status,
		ExecutionTimeMS: executionMS,
		ErrorCode:       errorCode,
	})
}

// Startup and Shutdown bracket the server's lifetime in the log.
func (l *Log) Startup()  { l.append(Entry{Event: "startup"}) }
func (l *Log) Shutdown() { l.append(Entry{Event: "shutdown"}) }

func (l *Log) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	e.ID = ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
	e.Timestamp = now.Format(time.RFC3339)

	line, err := json.Marshal(e)
	if err != nil {
		if l.logger != nil {
			l.logger.Printf("audit: marshal failed: %v", err)
		}
		return
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		if l.logger != nil {
			l.logger.Printf("audit: write failed: %v", err)
		}
	}

	l.recent = append(l.recent, e)
	if len(l.recent) > recentCap {
		l.recent = l.recent[len(l.recent)-recentCap:]
	}
}

// Recent returns up to n most recent entries, newest last.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]Entry, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// HashUserID reduces a user identifier to an opaque 12-byte hex prefix of
// its blake3 hash. Empty ids map to "anonymous".
func HashUserID(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	sum := blake3.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:12])
}
