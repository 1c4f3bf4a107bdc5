package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drover-ai/drover/pkg/auth"
	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/session"
)

// eventBuffer is the per-stream channel capacity. Slow consumers drop
// events rather than stall the run.
const eventBuffer = 256

type createSessionRequest struct {
	Task string `json:"task"`
}

type continueSessionRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	names := s.runner.AgentNames()
	cards := make([]AgentCard, 0, len(names))
	for _, name := range names {
		card, err := s.runner.AgentCard(name)
		if err != nil {
			continue
		}
		cards = append(cards, card)
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": cards})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agent")
	card, err := s.runner.AgentCard(name)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown agent: %s", name))
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	if _, err := s.runner.AgentCard(agent); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown agent: %s", agent))
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	s.runSession(w, r, RunSpec{
		Agent:     agent,
		Task:      req.Task,
		Principal: principalOf(r),
		Bearer:    auth.BearerFromContext(r.Context()),
	})
}

func (s *Server) handleContinueSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	var req continueSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.runSession(w, r, RunSpec{
		Agent:     sess.Agent,
		SessionID: sess.ID,
		Task:      req.Message,
		Principal: principalOf(r),
		Bearer:    auth.BearerFromContext(r.Context()),
	})
}

// runSession dispatches sync or streaming execution under the
// concurrency bound.
func (s *Server) runSession(w http.ResponseWriter, r *http.Request, spec RunSpec) {
	if !s.acquire() {
		writeError(w, http.StatusTooManyRequests, "server at capacity")
		return
	}
	defer s.release()

	if r.URL.Query().Get("stream") == "true" {
		s.streamRun(w, r, spec)
		return
	}

	res, err := s.runner.RunSession(r.Context(), spec)
	if err != nil {
		slog.Error("Session run failed", "agent", spec.Agent, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamRun executes the session in a goroutine and relays its events
// as SSE frames, closing with a terminal outcome or error frame.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, spec RunSpec) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := events.NewChannel(eventBuffer)
	spec.Emitter = ch

	type runOutcome struct {
		res RunResult
		err error
	}
	done := make(chan runOutcome, 1)
	go func() {
		res, err := s.runner.RunSession(r.Context(), spec)
		ch.Close()
		done <- runOutcome{res: res, err: err}
	}()

	for ev := range ch.Events() {
		writeSSE(w, flusher, ev.Name, ev.Payload)
	}

	out := <-done
	if out.err != nil {
		writeSSE(w, flusher, "error", map[string]any{"message": out.err.Error()})
		return
	}
	writeSSE(w, flusher, "outcome", map[string]any{
		"session_id": out.res.SessionID,
		"result":     out.res.Result,
		"iterations": out.res.Iterations,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	principal := principalOf(r)
	sessions, err := s.store.List(r.Context(), principal.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	entries, err := s.store.Entries(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"entries": entries,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedSession loads the session and enforces ownership. Sessions owned
// by another principal read as not found so IDs do not leak.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session: %s", id))
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load session")
		}
		return session.Session{}, false
	}
	if sess.Principal != principalOf(r).Subject {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session: %s", id))
		return session.Session{}, false
	}
	return sess, true
}

func principalOf(r *http.Request) auth.Principal {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p
	}
	return auth.Anonymous()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
