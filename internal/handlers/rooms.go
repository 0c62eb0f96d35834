package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom handles explicit room creation by an assessor.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	room, err := h.eng.CreateRoom(r.Context(), sessionID, actorID, req.Name)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// CallNextRequest represents the call-next-students request.
type CallNextRequest struct {
	StudentIDs []uuid.UUID `json:"student_ids"`
}

// CallNextStudents handles pulling a batch of unassigned students into a
// fresh room together with the calling assessor.
func (h *Handler) CallNextStudents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CallNextRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.StudentIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "student_ids is required")
		return
	}

	room, err := h.eng.CallNextStudents(r.Context(), sessionID, actorID, req.StudentIDs)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, room)
}
