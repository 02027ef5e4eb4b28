package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/just-nadir/justpos-sync/internal/store"
)

// AgentHandler serves the store agent's local status surface. It binds to
// the terminal's own interface; the POS frontend polls it to show sync
// state.
type AgentHandler struct {
	store store.LocalStore
}

func NewAgentHandler(st store.LocalStore) *AgentHandler {
	return &AgentHandler{store: st}
}

func (h *AgentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/api/v1/status", h.Status)

	return r
}

func (h *AgentHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type agentStatus struct {
	QueueDepth   int   `json:"queue_depth"`
	LastPulledAt int64 `json:"last_pulled_at"`
}

func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	depth, err := h.store.QueueDepth(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cursor, err := h.store.Cursor(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, agentStatus{QueueDepth: depth, LastPulledAt: cursor})
}
