package handlers

import (
	"net/http"
)

// RequestBreak handles a student's break request.
func (h *Handler) RequestBreak(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	br, err := h.eng.RequestBreak(r.Context(), sessionID, actorID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, br)
}

// ApproveBreak handles break approval by a moderator or admin.
func (h *Handler) ApproveBreak(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	requestID, ok := h.pathID(w, r, "requestID")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.eng.ApproveBreak(r.Context(), sessionID, requestID, actorID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// DenyBreakRequest carries the denial reason.
type DenyBreakRequest struct {
	Reason string `json:"reason"`
}

// DenyBreak handles break denial by a moderator or admin.
func (h *Handler) DenyBreak(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	requestID, ok := h.pathID(w, r, "requestID")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req DenyBreakRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.eng.DenyBreak(r.Context(), sessionID, requestID, actorID, req.Reason); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "denied"})
}

// ReturnFromBreak handles a student coming back from an approved break.
func (h *Handler) ReturnFromBreak(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	p, err := h.eng.ReturnFromBreak(r.Context(), sessionID, actorID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, p)
}
