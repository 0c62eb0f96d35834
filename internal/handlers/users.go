package handlers

import (
	"net/http"
	"strings"

	"github.com/proctorhq/sessiond/internal/models"
)

// CreateUserRequest represents the user creation request.
type CreateUserRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// CreateUser handles user bootstrap. Account lifecycle lives elsewhere;
// this exists so the engine has roles to authorize against.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	role := models.Role(req.Role)
	if !models.ValidRole(role) {
		h.Error(w, http.StatusBadRequest, "role must be admin, moderator, assessor or student")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Name, role)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.JSON(w, http.StatusCreated, user)
}

// GetUser handles user lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user)
}
