package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chartbridge/chartbridge/internal/engine"
	"github.com/chartbridge/chartbridge/internal/schema"
	"github.com/chartbridge/chartbridge/internal/visual"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "chartbridge",
		"version": s.config.Version,
		"docs":    "/api/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.HealthResponse{
		Status:           "ok",
		WorkflowsLoaded:  len(s.engine.Workflows()),
		ConnectorsActive: s.connectorsActive(),
		Version:          s.config.Version,
		UptimeSeconds:    time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) connectorsActive() int {
	// Every loaded workflow has a registered connector; count distinct names.
	names := map[string]bool{}
	for _, wf := range s.engine.Workflows() {
		names[wf.Connector] = true
	}
	return len(names)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req schema.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Hotkey == "" {
		req.Hotkey = req.Context.Hotkey
	}
	if req.Hotkey == "" {
		writeError(w, http.StatusBadRequest, "hotkey is required")
		return
	}

	resp, err := s.engine.Execute(r.Context(), req.Hotkey, req.Context)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownHotkey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "workflow execution failed")
		return
	}
	// Workflow-level failures ride in the body with HTTP 200.
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.engine.Workflows()})
}

func (s *Server) handleListVisual(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleCreateVisual(w http.ResponseWriter, r *http.Request) {
	var wf schema.VisualWorkflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid workflow: %v", err))
		return
	}
	created, err := s.store.Create(wf)
	if err != nil {
		writeError(w, visualErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetVisual(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, visualErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateVisual(w http.ResponseWriter, r *http.Request) {
	var wf schema.VisualWorkflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid workflow: %v", err))
		return
	}
	updated, err := s.store.Update(r.PathValue("id"), wf)
	if err != nil {
		writeError(w, visualErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteVisual(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		writeError(w, visualErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleExecuteVisual(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, visualErrorStatus(err), err.Error())
		return
	}

	var body struct {
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	res := s.executor.Run(r.Context(), &wf, body.Variables)
	// Terminal interpreter outcomes, including step failures, are HTTP 200.
	writeJSON(w, http.StatusOK, res)
}

// visualErrorStatus maps store errors to HTTP statuses: unknown ids are 404;
// duplicates and validation failures are 400.
func visualErrorStatus(err error) int {
	switch {
	case errors.Is(err, visual.ErrDuplicate):
		return http.StatusBadRequest
	case errors.Is(err, visual.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handlePickerActivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		FieldName string `json:"field_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	sess, err := s.picker.Activate(req.SessionID, req.FieldName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePickerCoordinates(w http.ResponseWriter, r *http.Request) {
	var req Coordinates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	sess, err := s.picker.Report(req.X, req.Y)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePickerStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.picker.Status(r.PathValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	if s.supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no agent configured")
		return
	}
	if err := s.supervisor.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	if s.supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, "no agent configured")
		return
	}
	if err := s.supervisor.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if s.supervisor == nil {
		writeJSON(w, http.StatusOK, AgentStatus{Running: false})
		return
	}
	writeJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if s.auditLog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.auditLog.Recent(limit)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
