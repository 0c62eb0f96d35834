package models

import (
	"time"

	"github.com/google/uuid"
)

// FlagStatus is the adjudication state of a flag. Escalation is tracked
// separately; an escalated flag remains Pending until accepted or rejected.
type FlagStatus string

const (
	FlagPending  FlagStatus = "pending"
	FlagAccepted FlagStatus = "accepted"
	FlagRejected FlagStatus = "rejected"
)

// Flag is an integrity concern raised against a student by an assessor or
// moderator. Accepting a flag kicks the student as a separate, audited
// consequence.
type Flag struct {
	ID          uuid.UUID  `json:"id"`
	InstanceID  uuid.UUID  `json:"instance_id"`
	StudentID   uuid.UUID  `json:"student_id"`
	RaisedBy    uuid.UUID  `json:"raised_by"`
	RaisedRole  Role       `json:"raised_role"`
	Reason      string     `json:"reason"`
	Status      FlagStatus `json:"status"`
	IsEscalated bool       `json:"is_escalated"`
	EscalatedBy *uuid.UUID `json:"escalated_by,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
