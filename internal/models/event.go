package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies one kind of domain transition.
type EventType string

const (
	EventSessionStarted    EventType = "SESSION_STARTED"
	EventSessionEnded      EventType = "SESSION_ENDED"
	EventUserJoined        EventType = "USER_JOINED"
	EventUserDisconnected  EventType = "USER_DISCONNECTED"
	EventStudentWaiting    EventType = "STUDENT_WAITING"
	EventBreakRequested    EventType = "BREAK_REQUESTED"
	EventBreakApproved     EventType = "BREAK_APPROVED"
	EventReturnedFromBreak EventType = "RETURNED_FROM_BREAK"
	EventFlagUser          EventType = "FLAG_USER"
	EventFlagEscalated     EventType = "FLAG_ESCALATED"
	EventFlagAccepted      EventType = "FLAG_ACCEPTED"
	EventFlagRejected      EventType = "FLAG_REJECTED"
	EventUserKicked        EventType = "USER_KICKED"
	EventCallNextStudents  EventType = "CALL_NEXT_STUDENTS"
	EventRoomCreated       EventType = "ROOM_CREATED"
)

// EventPayload is implemented by every per-event payload struct. Each
// payload carries exactly the fields observers need to replay the
// transition; the type is fixed at construction, not inferred late.
type EventPayload interface {
	Type() EventType
}

type SessionStartedPayload struct {
	SessionName   string `json:"session_name"`
	NumberOfRooms int    `json:"number_of_rooms"`
}

type SessionEndedPayload struct {
	EndedBy uuid.UUID `json:"ended_by"`
}

type UserJoinedPayload struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   Role       `json:"role"`
	RoomID *uuid.UUID `json:"room_id,omitempty"`
}

type UserDisconnectedPayload struct {
	UserID          uuid.UUID `json:"user_id"`
	DisconnectCount int       `json:"disconnect_count"`
	Left            bool      `json:"left"` // true for explicit leave
}

type StudentWaitingPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type BreakRequestedPayload struct {
	RequestID uuid.UUID `json:"request_id"`
	StudentID uuid.UUID `json:"student_id"`
}

type BreakApprovedPayload struct {
	RequestID  uuid.UUID `json:"request_id"`
	StudentID  uuid.UUID `json:"student_id"`
	ApprovedBy uuid.UUID `json:"approved_by"`
}

type ReturnedFromBreakPayload struct {
	StudentID uuid.UUID  `json:"student_id"`
	RoomID    *uuid.UUID `json:"room_id,omitempty"` // nil when back to waiting
}

type FlagUserPayload struct {
	FlagID    uuid.UUID `json:"flag_id"`
	StudentID uuid.UUID `json:"student_id"`
	RaisedBy  uuid.UUID `json:"raised_by"`
	Reason    string    `json:"reason"`
}

type FlagEscalatedPayload struct {
	FlagID      uuid.UUID `json:"flag_id"`
	EscalatedBy uuid.UUID `json:"escalated_by"`
}

type FlagAcceptedPayload struct {
	FlagID     uuid.UUID `json:"flag_id"`
	StudentID  uuid.UUID `json:"student_id"`
	Resolution string    `json:"resolution"`
}

type FlagRejectedPayload struct {
	FlagID     uuid.UUID `json:"flag_id"`
	StudentID  uuid.UUID `json:"student_id"`
	Resolution string    `json:"resolution"`
}

type UserKickedPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	KickedBy uuid.UUID `json:"kicked_by"`
	Reason   string    `json:"reason"`
}

type CallNextStudentsPayload struct {
	RoomID     uuid.UUID   `json:"room_id"`
	StudentIDs []uuid.UUID `json:"student_ids"`
	CalledBy   uuid.UUID   `json:"called_by"`
}

type RoomCreatedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
	Name   string    `json:"name"`
}

func (SessionStartedPayload) Type() EventType    { return EventSessionStarted }
func (SessionEndedPayload) Type() EventType      { return EventSessionEnded }
func (UserJoinedPayload) Type() EventType        { return EventUserJoined }
func (UserDisconnectedPayload) Type() EventType  { return EventUserDisconnected }
func (StudentWaitingPayload) Type() EventType    { return EventStudentWaiting }
func (BreakRequestedPayload) Type() EventType    { return EventBreakRequested }
func (BreakApprovedPayload) Type() EventType     { return EventBreakApproved }
func (ReturnedFromBreakPayload) Type() EventType { return EventReturnedFromBreak }
func (FlagUserPayload) Type() EventType          { return EventFlagUser }
func (FlagEscalatedPayload) Type() EventType     { return EventFlagEscalated }
func (FlagAcceptedPayload) Type() EventType      { return EventFlagAccepted }
func (FlagRejectedPayload) Type() EventType      { return EventFlagRejected }
func (UserKickedPayload) Type() EventType        { return EventUserKicked }
func (CallNextStudentsPayload) Type() EventType  { return EventCallNextStudents }
func (RoomCreatedPayload) Type() EventType       { return EventRoomCreated }

// Actor identifies who emitted an event.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   Role      `json:"role"`
}

// Envelope is the wire shape delivered to the real-time channel and
// reconstructible from a stored AuditEvent for replay.
type Envelope struct {
	EventID   string          `json:"eventId"`
	Type      EventType       `json:"type"`
	SessionID uuid.UUID       `json:"sessionId"`
	EmittedBy Actor           `json:"emittedBy"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix seconds
}

// AuditEvent is the immutable stored record of one domain transition.
// Only Published may change after creation, and only false -> true.
type AuditEvent struct {
	ID          string    `json:"id"` // ULID: lexicographic order is creation order
	InstanceID  uuid.UUID `json:"instance_id"`
	SessionID   uuid.UUID `json:"session_id"`
	Type        EventType `json:"type"`
	EmittedBy   uuid.UUID `json:"emitted_by"`
	EmitterRole Role      `json:"emitter_role"`
	Payload     []byte    `json:"payload"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
}

// Envelope rebuilds the publish envelope from the stored row.
func (e *AuditEvent) Envelope() Envelope {
	return Envelope{
		EventID:   e.ID,
		Type:      e.Type,
		SessionID: e.SessionID,
		EmittedBy: Actor{UserID: e.EmittedBy, Role: e.EmitterRole},
		Payload:   json.RawMessage(e.Payload),
		Timestamp: e.CreatedAt.Unix(),
	}
}
