package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/audit"
	"github.com/proctorhq/sessiond/internal/engine"
	"github.com/proctorhq/sessiond/internal/realtime"
	"github.com/proctorhq/sessiond/internal/store"
)

// actorHeader carries the calling user's ID. Authentication is handled
// upstream of this service; the engine authorizes by stored role.
const actorHeader = "X-Actor-ID"

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	eng      *engine.Engine
	recorder *audit.Recorder
	redis    *realtime.RedisPublisher // nil in development
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, eng *engine.Engine, recorder *audit.Recorder, redis *realtime.RedisPublisher) *Handler {
	return &Handler{db: db, eng: eng, recorder: recorder, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// EngineError maps an engine error kind to its HTTP status.
func (h *Handler) EngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch engine.KindOf(err) {
	case engine.KindUnauthorized:
		status, message = http.StatusForbidden, err.Error()
	case engine.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case engine.KindConflict:
		status, message = http.StatusConflict, err.Error()
	case engine.KindInvalidState:
		status, message = http.StatusUnprocessableEntity, err.Error()
	}
	h.Error(w, status, message)
}

// actor extracts the calling user's ID from the request header.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(actorHeader)
	if raw == "" {
		h.Error(w, http.StatusBadRequest, actorHeader+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+actorHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a UUID URL parameter.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// decode parses a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
