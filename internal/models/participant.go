package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus is the lifecycle state of a session membership.
type ParticipantStatus string

const (
	ParticipantWaiting ParticipantStatus = "waiting"
	ParticipantInRoom  ParticipantStatus = "in_room"
	ParticipantOnBreak ParticipantStatus = "on_break"
	ParticipantLeft    ParticipantStatus = "left"
	ParticipantKicked  ParticipantStatus = "kicked"
)

// Participant is one user's membership in one session instance, unique per
// (instance, user). Role is snapshotted at join time. Kicked is terminal.
type Participant struct {
	ID              uuid.UUID         `json:"id"`
	InstanceID      uuid.UUID         `json:"instance_id"`
	UserID          uuid.UUID         `json:"user_id"`
	Role            Role              `json:"role"`
	Status          ParticipantStatus `json:"status"`
	Connected       bool              `json:"connected"`
	RoomID          *uuid.UUID        `json:"room_id,omitempty"`
	DisconnectCount int               `json:"disconnect_count"`
	CanRejoin       bool              `json:"can_rejoin"`
	KickReason      string            `json:"kick_reason,omitempty"`
	JoinedAt        time.Time         `json:"joined_at"`
	LeftAt          *time.Time        `json:"left_at,omitempty"`
}

// Terminal reports whether the participant can no longer transition.
func (p *Participant) Terminal() bool {
	return p.Status == ParticipantKicked
}
