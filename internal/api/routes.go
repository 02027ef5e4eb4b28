package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/cloud"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/notify"
	"github.com/just-nadir/justpos-sync/internal/sync"
)

type Handler struct {
	store     cloud.Store
	hub       *notify.Hub
	authToken string
}

func NewHandler(store cloud.Store, hub *notify.Hub, authToken string) *Handler {
	return &Handler{
		store:     store,
		hub:       hub,
		authToken: authToken,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/sync/push", h.PushChanges)
		r.Get("/sync/pull", h.PullChanges)
		r.Get("/sync/ws", h.Subscribe)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// PushChanges applies a store's batch atomically and wakes the store's
// other terminals.
func (h *Handler) PushChanges(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sync.PushResponse{Error: "invalid request body"})
		return
	}
	if req.StoreID == "" {
		writeJSON(w, http.StatusBadRequest, sync.PushResponse{Error: "store_id is required"})
		return
	}

	if err := h.store.Apply(r.Context(), req.StoreID, req.Changes); err != nil {
		logger.Log.Error("Failed to apply push batch",
			zap.String("store_id", req.StoreID),
			zap.Int("changes", len(req.Changes)),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sync.PushResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sync.PushResponse{Success: true})

	if h.hub != nil {
		h.hub.Notify(req.StoreID)
	}
}

// PullChanges returns every change for the store past its cursor, plus the
// authority clock reading the cursor should advance to.
func (h *Handler) PullChanges(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		writeJSON(w, http.StatusBadRequest, sync.PullResponse{Error: "store_id is required"})
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("last_pulled_at"), 10, 64)

	// Read the clock before querying: rows committed between the read and
	// the query are returned now and again next pull, which is harmless;
	// the other order would skip them forever.
	serverTime := time.Now().UnixMilli()

	changes, err := h.store.Changes(r.Context(), storeID, since)
	if err != nil {
		logger.Log.Error("Failed to collect pull changes",
			zap.String("store_id", storeID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sync.PullResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sync.PullResponse{
		Success:    true,
		ServerTime: serverTime,
		Changes:    changes,
	})
}

// Subscribe upgrades the connection and registers it with the notifier hub.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		http.Error(w, "store_id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Subscribe(storeID, conn)
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
