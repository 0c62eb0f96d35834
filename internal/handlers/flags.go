package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

// FlagRequest represents the flag creation request.
type FlagRequest struct {
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason"`
}

// FlagUser handles raising a flag. Moderators go through the moderator
// entry point, everyone else through the assessor one; the engine enforces
// the role either way.
func (h *Handler) FlagUser(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req FlagRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.StudentID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "student_id is required")
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		h.Error(w, http.StatusBadRequest, "reason is required")
		return
	}

	user, err := h.db.GetUser(r.Context(), actorID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	var flag *models.Flag
	if user != nil && user.Role == models.RoleModerator {
		flag, err = h.eng.ModeratorFlagUser(r.Context(), sessionID, req.StudentID, actorID, req.Reason)
	} else {
		flag, err = h.eng.FlagUser(r.Context(), sessionID, req.StudentID, actorID, req.Reason)
	}
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, flag)
}

// EscalateFlag handles flag escalation by a moderator.
func (h *Handler) EscalateFlag(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	flagID, ok := h.pathID(w, r, "flagID")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.eng.EscalateFlag(r.Context(), sessionID, flagID, actorID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "escalated"})
}

// ResolveFlagRequest carries the adjudication outcome text.
type ResolveFlagRequest struct {
	Resolution string `json:"resolution"`
}

// AcceptFlag handles flag acceptance, which also kicks the student.
func (h *Handler) AcceptFlag(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	flagID, ok := h.pathID(w, r, "flagID")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req ResolveFlagRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.eng.AcceptFlag(r.Context(), sessionID, flagID, actorID, req.Resolution); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// RejectFlag handles flag rejection.
func (h *Handler) RejectFlag(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	flagID, ok := h.pathID(w, r, "flagID")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req ResolveFlagRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.eng.RejectFlag(r.Context(), sessionID, flagID, actorID, req.Resolution); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// KickRequest represents the direct kick request.
type KickRequest struct {
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason"`
}

// KickStudent handles a direct kick without a flag record.
func (h *Handler) KickStudent(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req KickRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.StudentID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "student_id is required")
		return
	}

	if err := h.eng.KickStudent(r.Context(), sessionID, req.StudentID, actorID, req.Reason); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "kicked"})
}
