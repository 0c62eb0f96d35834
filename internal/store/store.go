package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

// DataStore defines the interface for persistent storage of sessions,
// participants, rooms, workflow records and the audit log. Both
// PostgresStore and SQLiteStore implement this interface.
//
// Lookup methods return (nil, nil) when the row does not exist; callers
// translate that into their own not-found errors.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Session template operations
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// Session instance operations
	CreateInstance(ctx context.Context, inst *models.SessionInstance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*models.SessionInstance, error)
	GetActiveInstance(ctx context.Context, sessionID uuid.UUID) (*models.SessionInstance, error)
	UpdateInstance(ctx context.Context, inst *models.SessionInstance) error

	// Room operations
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRooms(ctx context.Context, instanceID uuid.UUID) ([]models.Room, error)
	CountRoomStudents(ctx context.Context, roomID uuid.UUID) (int, error)

	// Participant operations
	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, instanceID, userID uuid.UUID) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	ListRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)

	// Break request operations
	CreateBreakRequest(ctx context.Context, br *models.BreakRequest) error
	GetBreakRequest(ctx context.Context, id uuid.UUID) (*models.BreakRequest, error)
	GetPendingBreakRequest(ctx context.Context, instanceID, studentID uuid.UUID) (*models.BreakRequest, error)
	UpdateBreakRequest(ctx context.Context, br *models.BreakRequest) error

	// Flag operations
	CreateFlag(ctx context.Context, f *models.Flag) error
	GetFlag(ctx context.Context, id uuid.UUID) (*models.Flag, error)
	UpdateFlag(ctx context.Context, f *models.Flag) error

	// Audit log operations. Events are immutable after append except for
	// the published flag, which only ever flips false -> true.
	AppendEvent(ctx context.Context, ev *models.AuditEvent) error
	MarkEventPublished(ctx context.Context, id string) error
	ListInstanceEvents(ctx context.Context, instanceID uuid.UUID, afterID string, limit int) ([]models.AuditEvent, error)
	ListUnpublishedEvents(ctx context.Context, olderThan time.Time, limit int) ([]models.AuditEvent, error)
}
