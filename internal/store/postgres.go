package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/sessiond/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		scheduled_start TIMESTAMPTZ NOT NULL,
		scheduled_end TIMESTAMPTZ NOT NULL,
		reporting_start TIMESTAMPTZ NOT NULL,
		reporting_end TIMESTAMPTZ NOT NULL,
		max_students_per_room INT NOT NULL,
		number_of_rooms INT NOT NULL,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS session_instances (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		status TEXT NOT NULL,
		started_by UUID NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_by UUID,
		ended_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS rooms (
		seq BIGSERIAL PRIMARY KEY,
		id UUID UNIQUE NOT NULL,
		instance_id UUID NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id UUID PRIMARY KEY,
		instance_id UUID NOT NULL,
		user_id UUID NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		connected BOOLEAN NOT NULL DEFAULT true,
		room_id UUID,
		disconnect_count INT NOT NULL DEFAULT 0,
		can_rejoin BOOLEAN NOT NULL DEFAULT false,
		kick_reason TEXT NOT NULL DEFAULT '',
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ,
		UNIQUE(instance_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS break_requests (
		id UUID PRIMARY KEY,
		instance_id UUID NOT NULL,
		student_id UUID NOT NULL,
		status TEXT NOT NULL,
		deny_reason TEXT NOT NULL DEFAULT '',
		requested_at TIMESTAMPTZ NOT NULL,
		resolved_by UUID,
		resolved_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS flags (
		id UUID PRIMARY KEY,
		instance_id UUID NOT NULL,
		student_id UUID NOT NULL,
		raised_by UUID NOT NULL,
		raised_role TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		is_escalated BOOLEAN NOT NULL DEFAULT false,
		escalated_by UUID,
		escalated_at TIMESTAMPTZ,
		resolution TEXT NOT NULL DEFAULT '',
		resolved_by UUID,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		instance_id UUID NOT NULL,
		session_id UUID NOT NULL,
		type TEXT NOT NULL,
		emitted_by UUID NOT NULL,
		emitter_role TEXT NOT NULL,
		payload JSONB NOT NULL,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instances_session ON session_instances(session_id, status);
	CREATE INDEX IF NOT EXISTS idx_rooms_instance ON rooms(instance_id);
	CREATE INDEX IF NOT EXISTS idx_participants_instance ON participants(instance_id);
	CREATE INDEX IF NOT EXISTS idx_participants_room ON participants(room_id);
	CREATE INDEX IF NOT EXISTS idx_breaks_student ON break_requests(instance_id, student_id, status);
	CREATE INDEX IF NOT EXISTS idx_events_instance ON audit_events(instance_id, id);
	CREATE INDEX IF NOT EXISTS idx_events_published ON audit_events(published, created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error) {
	user := &models.User{ID: uuid.New(), Name: name, Role: role}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, user.ID, user.Name, string(user.Role)).Scan(&user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, role, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Role = models.Role(role)
	return user, nil
}

// CreateSession creates a new session template.
func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, name, scheduled_start, scheduled_end, reporting_start,
			reporting_end, max_students_per_room, number_of_rooms, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sess.ID, sess.Name, sess.ScheduledStart, sess.ScheduledEnd,
		sess.ReportingStart, sess.ReportingEnd, sess.MaxStudentsPerRoom,
		sess.NumberOfRooms, sess.CreatedBy, sess.CreatedAt)
	return err
}

// GetSession retrieves a session template by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess := &models.Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, scheduled_start, scheduled_end, reporting_start, reporting_end,
			max_students_per_room, number_of_rooms, created_by, created_at
		FROM sessions WHERE id = $1
	`, id).Scan(
		&sess.ID, &sess.Name, &sess.ScheduledStart, &sess.ScheduledEnd,
		&sess.ReportingStart, &sess.ReportingEnd, &sess.MaxStudentsPerRoom,
		&sess.NumberOfRooms, &sess.CreatedBy, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// CreateInstance creates a new session instance.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.SessionInstance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_instances (id, session_id, status, started_by, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, inst.ID, inst.SessionID, string(inst.Status), inst.StartedBy, inst.StartedAt)
	return err
}

func (s *PostgresStore) queryInstance(ctx context.Context, query string, args ...any) (*models.SessionInstance, error) {
	inst := &models.SessionInstance{}
	var status string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&inst.ID, &inst.SessionID, &status, &inst.StartedBy,
		&inst.StartedAt, &inst.EndedBy, &inst.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inst.Status = models.InstanceStatus(status)
	return inst, nil
}

// GetInstance retrieves a session instance by ID.
func (s *PostgresStore) GetInstance(ctx context.Context, id uuid.UUID) (*models.SessionInstance, error) {
	return s.queryInstance(ctx, `
		SELECT id, session_id, status, started_by, started_at, ended_by, ended_at
		FROM session_instances WHERE id = $1
	`, id)
}

// GetActiveInstance retrieves the single active instance for a session, if any.
func (s *PostgresStore) GetActiveInstance(ctx context.Context, sessionID uuid.UUID) (*models.SessionInstance, error) {
	return s.queryInstance(ctx, `
		SELECT id, session_id, status, started_by, started_at, ended_by, ended_at
		FROM session_instances WHERE session_id = $1 AND status = $2
	`, sessionID, string(models.InstanceActive))
}

// UpdateInstance saves an instance row.
func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *models.SessionInstance) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE session_instances SET status = $1, ended_by = $2, ended_at = $3 WHERE id = $4
	`, string(inst.Status), inst.EndedBy, inst.EndedAt, inst.ID)
	return err
}

// CreateRoom creates a new room and reads back its creation sequence number.
func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, instance_id, name, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, room.ID, room.InstanceID, room.Name, room.Active, room.CreatedAt).Scan(&room.Seq)
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT seq, id, instance_id, name, active, created_at FROM rooms WHERE id = $1
	`, id).Scan(&room.Seq, &room.ID, &room.InstanceID, &room.Name, &room.Active, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves the active rooms of an instance in creation order.
func (s *PostgresStore) ListRooms(ctx context.Context, instanceID uuid.UUID) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, instance_id, name, active, created_at
		FROM rooms WHERE instance_id = $1 AND active = true
		ORDER BY seq ASC
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.Seq, &room.ID, &room.InstanceID, &room.Name,
			&room.Active, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRoomStudents counts non-kicked student participants assigned to a room.
func (s *PostgresStore) CountRoomStudents(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM participants
		WHERE room_id = $1 AND role = $2 AND status != $3
	`, roomID, string(models.RoleStudent), string(models.ParticipantKicked)).Scan(&count)
	return count, err
}

// CreateParticipant creates a new participant row.
func (s *PostgresStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, instance_id, user_id, role, status, connected,
			room_id, disconnect_count, can_rejoin, kick_reason, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.InstanceID, p.UserID, string(p.Role), string(p.Status), p.Connected,
		p.RoomID, p.DisconnectCount, p.CanRejoin, p.KickReason, p.JoinedAt, p.LeftAt)
	return err
}

func scanPGParticipant(row pgx.Row) (*models.Participant, error) {
	p := &models.Participant{}
	var role, status string
	err := row.Scan(&p.ID, &p.InstanceID, &p.UserID, &role, &status, &p.Connected,
		&p.RoomID, &p.DisconnectCount, &p.CanRejoin, &p.KickReason, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	p.Status = models.ParticipantStatus(status)
	return p, nil
}

// GetParticipant retrieves the participant for (instance, user), if any.
func (s *PostgresStore) GetParticipant(ctx context.Context, instanceID, userID uuid.UUID) (*models.Participant, error) {
	p, err := scanPGParticipant(s.pool.QueryRow(ctx, `
		SELECT id, instance_id, user_id, role, status, connected, room_id,
			disconnect_count, can_rejoin, kick_reason, joined_at, left_at
		FROM participants WHERE instance_id = $1 AND user_id = $2
	`, instanceID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// UpdateParticipant saves a participant row.
func (s *PostgresStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE participants SET status = $1, connected = $2, room_id = $3,
			disconnect_count = $4, can_rejoin = $5, kick_reason = $6, left_at = $7
		WHERE id = $8
	`, string(p.Status), p.Connected, p.RoomID, p.DisconnectCount,
		p.CanRejoin, p.KickReason, p.LeftAt, p.ID)
	return err
}

// ListRoomParticipants retrieves all participants assigned to a room.
func (s *PostgresStore) ListRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, user_id, role, status, connected, room_id,
			disconnect_count, can_rejoin, kick_reason, joined_at, left_at
		FROM participants WHERE room_id = $1
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanPGParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreateBreakRequest creates a new break request.
func (s *PostgresStore) CreateBreakRequest(ctx context.Context, br *models.BreakRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO break_requests (id, instance_id, student_id, status, deny_reason, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, br.ID, br.InstanceID, br.StudentID, string(br.Status), br.DenyReason, br.RequestedAt)
	return err
}

func (s *PostgresStore) queryBreakRequest(ctx context.Context, query string, args ...any) (*models.BreakRequest, error) {
	br := &models.BreakRequest{}
	var status string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&br.ID, &br.InstanceID, &br.StudentID, &status, &br.DenyReason,
		&br.RequestedAt, &br.ResolvedBy, &br.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	br.Status = models.BreakStatus(status)
	return br, nil
}

// GetBreakRequest retrieves a break request by ID.
func (s *PostgresStore) GetBreakRequest(ctx context.Context, id uuid.UUID) (*models.BreakRequest, error) {
	return s.queryBreakRequest(ctx, `
		SELECT id, instance_id, student_id, status, deny_reason, requested_at, resolved_by, resolved_at
		FROM break_requests WHERE id = $1
	`, id)
}

// GetPendingBreakRequest retrieves the pending break request for a student, if any.
func (s *PostgresStore) GetPendingBreakRequest(ctx context.Context, instanceID, studentID uuid.UUID) (*models.BreakRequest, error) {
	return s.queryBreakRequest(ctx, `
		SELECT id, instance_id, student_id, status, deny_reason, requested_at, resolved_by, resolved_at
		FROM break_requests
		WHERE instance_id = $1 AND student_id = $2 AND status = $3
		ORDER BY requested_at DESC LIMIT 1
	`, instanceID, studentID, string(models.BreakPending))
}

// UpdateBreakRequest saves a break request row.
func (s *PostgresStore) UpdateBreakRequest(ctx context.Context, br *models.BreakRequest) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE break_requests SET status = $1, deny_reason = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5
	`, string(br.Status), br.DenyReason, br.ResolvedBy, br.ResolvedAt, br.ID)
	return err
}

// CreateFlag creates a new flag.
func (s *PostgresStore) CreateFlag(ctx context.Context, f *models.Flag) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flags (id, instance_id, student_id, raised_by, raised_role,
			reason, status, is_escalated, resolution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, f.ID, f.InstanceID, f.StudentID, f.RaisedBy, string(f.RaisedRole),
		f.Reason, string(f.Status), f.IsEscalated, f.Resolution, f.CreatedAt)
	return err
}

// GetFlag retrieves a flag by ID.
func (s *PostgresStore) GetFlag(ctx context.Context, id uuid.UUID) (*models.Flag, error) {
	f := &models.Flag{}
	var raisedRole, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, instance_id, student_id, raised_by, raised_role, reason, status,
			is_escalated, escalated_by, escalated_at, resolution, resolved_by, resolved_at, created_at
		FROM flags WHERE id = $1
	`, id).Scan(
		&f.ID, &f.InstanceID, &f.StudentID, &f.RaisedBy, &raisedRole, &f.Reason, &status,
		&f.IsEscalated, &f.EscalatedBy, &f.EscalatedAt, &f.Resolution, &f.ResolvedBy,
		&f.ResolvedAt, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.RaisedRole = models.Role(raisedRole)
	f.Status = models.FlagStatus(status)
	return f, nil
}

// UpdateFlag saves a flag row.
func (s *PostgresStore) UpdateFlag(ctx context.Context, f *models.Flag) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE flags SET status = $1, is_escalated = $2, escalated_by = $3, escalated_at = $4,
			resolution = $5, resolved_by = $6, resolved_at = $7
		WHERE id = $8
	`, string(f.Status), f.IsEscalated, f.EscalatedBy, f.EscalatedAt,
		f.Resolution, f.ResolvedBy, f.ResolvedAt, f.ID)
	return err
}

// AppendEvent appends an audit event row.
func (s *PostgresStore) AppendEvent(ctx context.Context, ev *models.AuditEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, instance_id, session_id, type, emitted_by,
			emitter_role, payload, published, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.InstanceID, ev.SessionID, string(ev.Type), ev.EmittedBy,
		string(ev.EmitterRole), ev.Payload, ev.Published, ev.CreatedAt)
	return err
}

// MarkEventPublished flips the published flag to true.
func (s *PostgresStore) MarkEventPublished(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE audit_events SET published = true WHERE id = $1
	`, id)
	return err
}

func scanPGEvent(row pgx.Row) (*models.AuditEvent, error) {
	ev := &models.AuditEvent{}
	var evType, emitterRole string
	err := row.Scan(&ev.ID, &ev.InstanceID, &ev.SessionID, &evType, &ev.EmittedBy,
		&emitterRole, &ev.Payload, &ev.Published, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.Type = models.EventType(evType)
	ev.EmitterRole = models.Role(emitterRole)
	return ev, nil
}

// ListInstanceEvents retrieves events for an instance in creation order,
// starting after the given event ID (exclusive; empty means from the start).
func (s *PostgresStore) ListInstanceEvents(ctx context.Context, instanceID uuid.UUID, afterID string, limit int) ([]models.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, session_id, type, emitted_by, emitter_role,
			payload, published, created_at
		FROM audit_events
		WHERE instance_id = $1 AND id > $2
		ORDER BY id ASC LIMIT $3
	`, instanceID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		ev, err := scanPGEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ListUnpublishedEvents retrieves events whose publish attempt failed,
// oldest first, for the republish sweeper.
func (s *PostgresStore) ListUnpublishedEvents(ctx context.Context, olderThan time.Time, limit int) ([]models.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, session_id, type, emitted_by, emitter_role,
			payload, published, created_at
		FROM audit_events
		WHERE published = false AND created_at < $1
		ORDER BY id ASC LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		ev, err := scanPGEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}
