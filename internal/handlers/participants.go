package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

// Join handles a user joining (or reconnecting to) the active instance.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	p, err := h.eng.Join(r.Context(), sessionID, actorID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, p)
}

// Leave handles an explicit leave. Best-effort: the response reports
// whether anything changed rather than failing validation.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	left := h.eng.Leave(r.Context(), sessionID, actorID)
	h.JSON(w, http.StatusOK, map[string]bool{"left": left})
}

// Disconnect handles a network-detected drop report.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	disconnected := h.eng.Disconnect(r.Context(), sessionID, actorID)
	h.JSON(w, http.StatusOK, map[string]bool{"disconnected": disconnected})
}

// RejoinPermissionRequest identifies the student to unblock.
type RejoinPermissionRequest struct {
	StudentID uuid.UUID `json:"student_id"`
}

// GrantRejoinPermission handles the one-shot disconnect-limit override.
func (h *Handler) GrantRejoinPermission(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req RejoinPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.StudentID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "student_id is required")
		return
	}

	if err := h.eng.GrantRejoinPermission(r.Context(), sessionID, req.StudentID, actorID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "granted"})
}
