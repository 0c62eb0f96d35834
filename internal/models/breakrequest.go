package models

import (
	"time"

	"github.com/google/uuid"
)

// BreakStatus is the state of a break request.
type BreakStatus string

const (
	BreakPending  BreakStatus = "pending"
	BreakApproved BreakStatus = "approved"
	BreakDenied   BreakStatus = "denied"
)

// BreakRequest is a student's request to step away from their room.
// At most one Pending request per student is allowed at a time.
type BreakRequest struct {
	ID          uuid.UUID   `json:"id"`
	InstanceID  uuid.UUID   `json:"instance_id"`
	StudentID   uuid.UUID   `json:"student_id"`
	Status      BreakStatus `json:"status"`
	DenyReason  string      `json:"deny_reason,omitempty"`
	RequestedAt time.Time   `json:"requested_at"`
	ResolvedBy  *uuid.UUID  `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}
