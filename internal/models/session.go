package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the exam template: schedule, reporting window and room layout.
// It is immutable once an instance of it is Active.
type Session struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	ScheduledStart     time.Time `json:"scheduled_start"`
	ScheduledEnd       time.Time `json:"scheduled_end"`
	ReportingStart     time.Time `json:"reporting_start"`
	ReportingEnd       time.Time `json:"reporting_end"`
	MaxStudentsPerRoom int       `json:"max_students_per_room"`
	NumberOfRooms      int       `json:"number_of_rooms"`
	CreatedBy          uuid.UUID `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}

// InstanceStatus is the lifecycle state of a session instance.
type InstanceStatus string

const (
	InstancePending InstanceStatus = "pending"
	InstanceActive  InstanceStatus = "active"
	InstancePaused  InstanceStatus = "paused"
	InstanceEnded   InstanceStatus = "ended"
)

// SessionInstance is one activation of a Session. At most one Active
// instance exists per Session at any time.
type SessionInstance struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Status    InstanceStatus `json:"status"`
	StartedBy uuid.UUID      `json:"started_by"`
	StartedAt time.Time      `json:"started_at"`
	EndedBy   *uuid.UUID     `json:"ended_by,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}
