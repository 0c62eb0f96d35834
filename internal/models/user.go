package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's role within the platform. Participants snapshot the role
// at join time; authorization checks always read the live User record.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleAssessor  Role = "assessor"
	RoleStudent   Role = "student"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is one of the assignable roles.
// RoleSystem is reserved for events emitted by the service itself.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleAssessor, RoleStudent:
		return true
	}
	return false
}

// User represents a registered platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
