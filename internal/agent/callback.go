package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chartbridge/chartbridge/internal/schema"
)

// CallbackServer is the agent-local HTTP endpoint the visual interpreter
// posts write_coords requests to. It binds to its own port, separate from
// the orchestration server.
type CallbackServer struct {
	inserter *Inserter
	logger   *log.Logger
	httpSrv  *http.Server
}

func NewCallbackServer(addr string, inserter *Inserter, logger *log.Logger) *CallbackServer {
	cs := &CallbackServer{inserter: inserter, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute/write_coords", cs.handleWriteCoords)

	cs.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return cs
}

// Handler exposes the routing tree for tests.
func (cs *CallbackServer) Handler() http.Handler { return cs.httpSrv.Handler }

func (cs *CallbackServer) ListenAndServe() error {
	if cs.logger != nil {
		cs.logger.Printf("callback server listening on %s", cs.httpSrv.Addr)
	}
	err := cs.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (cs *CallbackServer) Shutdown(ctx context.Context) error {
	return cs.httpSrv.Shutdown(ctx)
}

func (cs *CallbackServer) handleWriteCoords(w http.ResponseWriter, r *http.Request) {
	var req schema.WriteCoordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCallbackError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := cs.execute(req); err != nil {
		if cs.logger != nil {
			cs.logger.Printf("write_coords at %d,%d failed: %v", req.X, req.Y, err)
		}
		writeCallbackError(w, http.StatusInternalServerError, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":      "success",
		"coordinates": map[string]int{"x": req.X, "y": req.Y},
	})
}

// execute clicks the target, inserts the content, and runs the optional key
// sequence. Paste insertion restores the prior clipboard.
func (cs *CallbackServer) execute(req schema.WriteCoordsRequest) error {
	if err := cs.inserter.IO.Click(req.X, req.Y); err != nil {
		return err
	}
	if err := cs.inserter.insert(req.Content, req.InsertMethod); err != nil {
		return err
	}
	for _, combo := range splitKeySequence(req.KeySequence) {
		if err := cs.inserter.IO.KeyCombo(combo); err != nil {
			return err
		}
	}
	return nil
}

// splitKeySequence parses "tab,tab,enter" into individual combos.
func splitKeySequence(seq string) []string {
	if seq == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(seq, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeCallbackError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": msg})
}
