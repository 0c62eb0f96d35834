package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

// CreateSessionRequest represents the session template creation request.
type CreateSessionRequest struct {
	Name               string    `json:"name"`
	ScheduledStart     time.Time `json:"scheduled_start"`
	ScheduledEnd       time.Time `json:"scheduled_end"`
	ReportingStart     time.Time `json:"reporting_start"`
	ReportingEnd       time.Time `json:"reporting_end"`
	MaxStudentsPerRoom int       `json:"max_students_per_room"`
	NumberOfRooms      int       `json:"number_of_rooms"`
}

// CreateSession handles session template creation.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.MaxStudentsPerRoom < 1 {
		h.Error(w, http.StatusBadRequest, "max_students_per_room must be at least 1")
		return
	}
	if req.NumberOfRooms < 1 {
		h.Error(w, http.StatusBadRequest, "number_of_rooms must be at least 1")
		return
	}
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		h.Error(w, http.StatusBadRequest, "scheduled_end must be after scheduled_start")
		return
	}

	sess := &models.Session{
		ID:                 uuid.New(),
		Name:               req.Name,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
		ReportingStart:     req.ReportingStart,
		ReportingEnd:       req.ReportingEnd,
		MaxStudentsPerRoom: req.MaxStudentsPerRoom,
		NumberOfRooms:      req.NumberOfRooms,
		CreatedBy:          actorID,
		CreatedAt:          time.Now().UTC(),
	}
	if err := h.db.CreateSession(r.Context(), sess); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.JSON(w, http.StatusCreated, sess)
}

// GetSession handles session template lookup.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	sess, err := h.db.GetSession(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if sess == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	h.JSON(w, http.StatusOK, sess)
}

// StartSession handles session activation.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	inst, err := h.eng.StartSession(r.Context(), sessionID, actorID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, inst)
}

// EndSession handles ending the active instance.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.eng.EndSession(r.Context(), sessionID, actorID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// EventsResponse represents a page of the audit log.
type EventsResponse struct {
	Events []models.Envelope `json:"events"`
	NextID string            `json:"next_id,omitempty"`
}

// ListEvents replays the ordered audit log for the session's active or most
// recent instance, with after/limit range parameters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.pathID(w, r, "instanceID")
	if !ok {
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	after := r.URL.Query().Get("after")

	events, err := h.recorder.Events(r.Context(), instanceID, after, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	resp := EventsResponse{Events: make([]models.Envelope, len(events))}
	for i := range events {
		resp.Events[i] = events[i].Envelope()
	}
	if len(events) == limit {
		resp.NextID = events[len(events)-1].ID
	}

	h.JSON(w, http.StatusOK, resp)
}
