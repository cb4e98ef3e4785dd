package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/redact"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/statemachine/visualizer"
	"github.com/gorilla/mux"
)

// maxWait bounds how long a ?wait=true action request is held open.
const maxWait = time.Minute

// FlowSummary is an entry in the flow listing.
type FlowSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Initial     string `json:"initial"`
	Terminal    string `json:"terminal"`
}

// TransitionRequest is the body of POST /sessions/{id}/transitions.
type TransitionRequest struct {
	To string `json:"to"`
}

// RunResponse reports a started or settled action.
type RunResponse struct {
	Action  string                     `json:"action"`
	Pending bool                       `json:"pending"`
	Result  *statemachine.ActionResult `json:"result,omitempty"`
	Session statemachine.Snapshot      `json:"session"`
}

// CancelResponse reports whether a pending action was cancelled.
type CancelResponse struct {
	Cancelled bool                  `json:"cancelled"`
	Session   statemachine.Snapshot `json:"session"`
}

func (s *Server) snapshot(ctx context.Context, m *statemachine.Machine) statemachine.Snapshot {
	snap := m.Snapshot()
	snap.Fields = redact.Fields(ctx, snap.Fields, s.redact)

	return snap
}

func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*statemachine.Machine, bool) {
	m, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)

		return nil, false
	}

	return m, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	names := s.catalog.Names()
	out := make([]FlowSummary, 0, len(names))

	for _, name := range names {
		cfg, err := s.catalog.Config(name)
		if err != nil {
			respondError(w, r, err)

			return
		}

		out = append(out, FlowSummary{
			Name:        cfg.Name,
			Description: cfg.Description,
			Initial:     cfg.Initial,
			Terminal:    cfg.Terminal,
		})
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.catalog.Config(mux.Vars(r)["flow"])
	if err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleFlowDiagram(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.catalog.Config(mux.Vars(r)["flow"])
	if err != nil {
		respondError(w, r, err)

		return
	}

	s.writeDiagram(w, r, cfg, visualizer.DefaultOptions().WithFenced(false))
}

func (s *Server) handleSessionDiagram(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	cfg, err := s.catalog.Config(m.Definition().Name)
	if err != nil {
		respondError(w, r, err)

		return
	}

	snap := m.Snapshot()
	path := make([]string, 0, len(snap.History)+1)

	for _, step := range snap.History {
		path = append(path, string(step))
	}

	path = append(path, string(snap.Step))

	s.writeDiagram(w, r, cfg, visualizer.DefaultOptions().WithFenced(false).WithHighlightPath(path))
}

func (s *Server) writeDiagram(
	w http.ResponseWriter, r *http.Request, cfg *statemachine.DefinitionConfig, opts visualizer.Options,
) {
	diagram, err := visualizer.GenerateMermaidWithOptions(cfg, opts)
	if err != nil {
		respondError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(diagram))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Create(r.Context(), mux.Vars(r)["flow"])
	if err != nil {
		respondError(w, r, err)

		return
	}

	w.Header().Set("Location", "/sessions/"+m.SessionID())
	respondJSON(w, http.StatusCreated, s.snapshot(r.Context(), m))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(r.Context(), m))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	var fields statemachine.Fields
	if err := decode(r, &fields); err != nil {
		respondError(w, r, err)

		return
	}

	if err := m.SetFields(fields); err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(r.Context(), m))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)

		return
	}

	if err := m.RequestTransition(r.Context(), statemachine.Step(req.To)); err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(r.Context(), m))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	if err := m.GoBack(r.Context()); err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(r.Context(), m))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	if err := m.Reset(r.Context()); err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(r.Context(), m))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	action := mux.Vars(r)["action"]

	pending, err := m.Run(logger.With(r.Context(), "action", action), action)
	if err != nil {
		respondError(w, r, err)

		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	if wait {
		waitCtx, cancel := context.WithTimeout(r.Context(), maxWait)
		defer cancel()

		_, _ = pending.Await(waitCtx)
	}

	resp := RunResponse{Action: pending.Action(), Pending: true}

	if result, settled := pending.Result(); settled {
		resp.Pending = false
		resp.Result = &result
	}

	resp.Session = s.snapshot(r.Context(), m)

	code := http.StatusAccepted
	if !resp.Pending {
		code = http.StatusOK
	}

	respondJSON(w, code, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	cancelled := m.Cancel()

	respondJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled, Session: s.snapshot(r.Context(), m)})
}
