// Package server is the orchestration boundary: it owns the workflow
// registries, the connector pool, the audit log, the agent supervisor, and
// the picker sessions. Everything except / and /api/health requires the
// shared bearer token.
package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chartbridge/chartbridge/internal/audit"
	"github.com/chartbridge/chartbridge/internal/engine"
	"github.com/chartbridge/chartbridge/internal/visual"
)

// Config holds server configuration.
type Config struct {
	Addr    string // listen address, e.g. ":8123"
	Token   string // shared bearer secret (MIDDLEWARE_TOKEN)
	Version string
}

// Server carries all process state; handlers hang off it so there are no
// package-level globals.
type Server struct {
	config     Config
	engine     *engine.Engine
	store      *visual.Store
	executor   *visual.Executor
	auditLog   *audit.Log
	supervisor *Supervisor
	picker     *PickerSessions
	startedAt  time.Time
	baseCtx    context.Context
	cancel     context.CancelFunc
	httpSrv    *http.Server
	logger     *log.Logger
}

// New wires the server from its collaborators.
func New(cfg Config, eng *engine.Engine, store *visual.Store, exec *visual.Executor, auditLog *audit.Log, supervisor *Supervisor) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		engine:     eng,
		store:      store,
		executor:   exec,
		auditLog:   auditLog,
		supervisor: supervisor,
		picker:     NewPickerSessions(),
		startedAt:  time.Now(),
		baseCtx:    ctx,
		cancel:     cancel,
		logger:     log.New(os.Stderr, "[chartbridge-server] ", log.LstdFlags),
	}

	mux := http.NewServeMux()

	// Unauthenticated: service descriptor and liveness probe.
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Go 1.22+ method+pattern routing; everything below requires the token.
	auth := s.requireAuth
	mux.HandleFunc("POST /api/trigger", auth(s.handleTrigger))
	mux.HandleFunc("GET /api/workflows", auth(s.handleListWorkflows))
	mux.HandleFunc("GET /api/visual-workflows", auth(s.handleListVisual))
	mux.HandleFunc("POST /api/visual-workflows", auth(s.handleCreateVisual))
	mux.HandleFunc("GET /api/visual-workflows/{id}", auth(s.handleGetVisual))
	mux.HandleFunc("PUT /api/visual-workflows/{id}", auth(s.handleUpdateVisual))
	mux.HandleFunc("DELETE /api/visual-workflows/{id}", auth(s.handleDeleteVisual))
	mux.HandleFunc("POST /api/visual-workflows/{id}/execute", auth(s.handleExecuteVisual))
	mux.HandleFunc("POST /api/picker/activate", auth(s.handlePickerActivate))
	mux.HandleFunc("POST /api/picker/coordinates", auth(s.handlePickerCoordinates))
	mux.HandleFunc("GET /api/picker/status/{session_id}", auth(s.handlePickerStatus))
	mux.HandleFunc("POST /api/agent/start", auth(s.handleAgentStart))
	mux.HandleFunc("POST /api/agent/stop", auth(s.handleAgentStop))
	mux.HandleFunc("GET /api/agent/status", auth(s.handleAgentStatus))
	mux.HandleFunc("GET /api/audit/recent", auth(s.handleAuditRecent))

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return s
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		s.logger.Printf("received %s, shutting down...", sig)
		s.Shutdown()
	}()

	if s.auditLog != nil {
		s.auditLog.Startup()
	}
	s.logger.Printf("listening on %s", s.config.Addr)
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the agent child, drains HTTP connections, and records the
// shutdown event.
func (s *Server) Shutdown() {
	if s.supervisor != nil {
		s.supervisor.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)

	if s.auditLog != nil {
		s.auditLog.Shutdown()
	}
	s.cancel()
}
