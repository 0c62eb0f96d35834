package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/proctorhq/sessiond/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sessiond.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sessiond.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scheduled_start DATETIME NOT NULL,
		scheduled_end DATETIME NOT NULL,
		reporting_start DATETIME NOT NULL,
		reporting_end DATETIME NOT NULL,
		max_students_per_room INTEGER NOT NULL,
		number_of_rooms INTEGER NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_instances (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_by TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_by TEXT,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS rooms (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		instance_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active INTEGER DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		connected INTEGER DEFAULT 1,
		room_id TEXT,
		disconnect_count INTEGER DEFAULT 0,
		can_rejoin INTEGER DEFAULT 0,
		kick_reason TEXT DEFAULT '',
		joined_at DATETIME NOT NULL,
		left_at DATETIME,
		UNIQUE(instance_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS break_requests (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		status TEXT NOT NULL,
		deny_reason TEXT DEFAULT '',
		requested_at DATETIME NOT NULL,
		resolved_by TEXT,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS flags (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		raised_by TEXT NOT NULL,
		raised_role TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		is_escalated INTEGER DEFAULT 0,
		escalated_by TEXT,
		escalated_at DATETIME,
		resolution TEXT DEFAULT '',
		resolved_by TEXT,
		resolved_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		emitted_by TEXT NOT NULL,
		emitter_role TEXT NOT NULL,
		payload TEXT NOT NULL,
		published INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instances_session ON session_instances(session_id, status);
	CREATE INDEX IF NOT EXISTS idx_rooms_instance ON rooms(instance_id);
	CREATE INDEX IF NOT EXISTS idx_participants_instance ON participants(instance_id);
	CREATE INDEX IF NOT EXISTS idx_participants_room ON participants(room_id);
	CREATE INDEX IF NOT EXISTS idx_breaks_student ON break_requests(instance_id, student_id, status);
	CREATE INDEX IF NOT EXISTS idx_events_instance ON audit_events(instance_id, id);
	CREATE INDEX IF NOT EXISTS idx_events_published ON audit_events(published, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error) {
	user := &models.User{
		ID:        uuid.New(),
		Name:      name,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID.String(), user.Name, string(user.Role), user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr, role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at FROM users WHERE id = ?
	`, id.String()).Scan(&idStr, &user.Name, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	user.Role = models.Role(role)
	return user, nil
}

// CreateSession creates a new session template.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, scheduled_start, scheduled_end, reporting_start,
			reporting_end, max_students_per_room, number_of_rooms, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID.String(), sess.Name, sess.ScheduledStart, sess.ScheduledEnd,
		sess.ReportingStart, sess.ReportingEnd, sess.MaxStudentsPerRoom,
		sess.NumberOfRooms, sess.CreatedBy.String(), sess.CreatedAt)
	return err
}

// GetSession retrieves a session template by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess := &models.Session{}
	var idStr, createdBy string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, scheduled_start, scheduled_end, reporting_start, reporting_end,
			max_students_per_room, number_of_rooms, created_by, created_at
		FROM sessions WHERE id = ?
	`, id.String()).Scan(
		&idStr, &sess.Name, &sess.ScheduledStart, &sess.ScheduledEnd,
		&sess.ReportingStart, &sess.ReportingEnd, &sess.MaxStudentsPerRoom,
		&sess.NumberOfRooms, &createdBy, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.ID = uuid.MustParse(idStr)
	sess.CreatedBy = uuid.MustParse(createdBy)
	return sess, nil
}

// CreateInstance creates a new session instance.
func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *models.SessionInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_instances (id, session_id, status, started_by, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, inst.ID.String(), inst.SessionID.String(), string(inst.Status),
		inst.StartedBy.String(), inst.StartedAt)
	return err
}

func (s *SQLiteStore) scanInstance(row *sql.Row) (*models.SessionInstance, error) {
	inst := &models.SessionInstance{}
	var idStr, sessionID, status, startedBy string
	var endedBy *string
	err := row.Scan(&idStr, &sessionID, &status, &startedBy, &inst.StartedAt, &endedBy, &inst.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inst.ID = uuid.MustParse(idStr)
	inst.SessionID = uuid.MustParse(sessionID)
	inst.Status = models.InstanceStatus(status)
	inst.StartedBy = uuid.MustParse(startedBy)
	if endedBy != nil {
		id := uuid.MustParse(*endedBy)
		inst.EndedBy = &id
	}
	return inst, nil
}

// GetInstance retrieves a session instance by ID.
func (s *SQLiteStore) GetInstance(ctx context.Context, id uuid.UUID) (*models.SessionInstance, error) {
	return s.scanInstance(s.db.QueryRowContext(ctx, `
		SELECT id, session_id, status, started_by, started_at, ended_by, ended_at
		FROM session_instances WHERE id = ?
	`, id.String()))
}

// GetActiveInstance retrieves the single active instance for a session, if any.
func (s *SQLiteStore) GetActiveInstance(ctx context.Context, sessionID uuid.UUID) (*models.SessionInstance, error) {
	return s.scanInstance(s.db.QueryRowContext(ctx, `
		SELECT id, session_id, status, started_by, started_at, ended_by, ended_at
		FROM session_instances WHERE session_id = ? AND status = ?
	`, sessionID.String(), string(models.InstanceActive)))
}

// UpdateInstance saves an instance row.
func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *models.SessionInstance) error {
	var endedBy *string
	if inst.EndedBy != nil {
		str := inst.EndedBy.String()
		endedBy = &str
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_instances SET status = ?, ended_by = ?, ended_at = ? WHERE id = ?
	`, string(inst.Status), endedBy, inst.EndedAt, inst.ID.String())
	return err
}

// CreateRoom creates a new room. The creation sequence number is assigned
// by the database and read back into room.Seq.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *models.Room) error {
	active := 0
	if room.Active {
		active = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, instance_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, room.ID.String(), room.InstanceID.String(), room.Name, active, room.CreatedAt)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.Seq = seq
	return nil
}

func scanRoom(scan func(dest ...any) error) (*models.Room, error) {
	room := &models.Room{}
	var idStr, instanceID string
	var active int
	err := scan(&room.Seq, &idStr, &instanceID, &room.Name, &active, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	room.ID = uuid.MustParse(idStr)
	room.InstanceID = uuid.MustParse(instanceID)
	room.Active = active == 1
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, instance_id, name, active, created_at FROM rooms WHERE id = ?
	`, id.String())
	room, err := scanRoom(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves the active rooms of an instance in creation order.
func (s *SQLiteStore) ListRooms(ctx context.Context, instanceID uuid.UUID) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, instance_id, name, active, created_at
		FROM rooms WHERE instance_id = ? AND active = 1
		ORDER BY seq ASC
	`, instanceID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows.Scan)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// CountRoomStudents counts non-kicked student participants assigned to a room.
func (s *SQLiteStore) CountRoomStudents(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants
		WHERE room_id = ? AND role = ? AND status != ?
	`, roomID.String(), string(models.RoleStudent), string(models.ParticipantKicked)).Scan(&count)
	return count, err
}

// CreateParticipant creates a new participant row.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	connected := 0
	if p.Connected {
		connected = 1
	}
	canRejoin := 0
	if p.CanRejoin {
		canRejoin = 1
	}
	var roomID *string
	if p.RoomID != nil {
		str := p.RoomID.String()
		roomID = &str
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, instance_id, user_id, role, status, connected,
			room_id, disconnect_count, can_rejoin, kick_reason, joined_at, left_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.InstanceID.String(), p.UserID.String(), string(p.Role),
		string(p.Status), connected, roomID, p.DisconnectCount, canRejoin,
		p.KickReason, p.JoinedAt, p.LeftAt)
	return err
}

func scanParticipant(scan func(dest ...any) error) (*models.Participant, error) {
	p := &models.Participant{}
	var idStr, instanceID, userID, role, status string
	var connected, canRejoin int
	var roomID *string
	err := scan(&idStr, &instanceID, &userID, &role, &status, &connected,
		&roomID, &p.DisconnectCount, &canRejoin, &p.KickReason, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.InstanceID = uuid.MustParse(instanceID)
	p.UserID = uuid.MustParse(userID)
	p.Role = models.Role(role)
	p.Status = models.ParticipantStatus(status)
	p.Connected = connected == 1
	p.CanRejoin = canRejoin == 1
	if roomID != nil {
		id := uuid.MustParse(*roomID)
		p.RoomID = &id
	}
	return p, nil
}

// GetParticipant retrieves the participant for (instance, user), if any.
func (s *SQLiteStore) GetParticipant(ctx context.Context, instanceID, userID uuid.UUID) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, user_id, role, status, connected, room_id,
			disconnect_count, can_rejoin, kick_reason, joined_at, left_at
		FROM participants WHERE instance_id = ? AND user_id = ?
	`, instanceID.String(), userID.String())
	p, err := scanParticipant(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// UpdateParticipant saves a participant row.
func (s *SQLiteStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	connected := 0
	if p.Connected {
		connected = 1
	}
	canRejoin := 0
	if p.CanRejoin {
		canRejoin = 1
	}
	var roomID *string
	if p.RoomID != nil {
		str := p.RoomID.String()
		roomID = &str
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants SET status = ?, connected = ?, room_id = ?,
			disconnect_count = ?, can_rejoin = ?, kick_reason = ?, left_at = ?
		WHERE id = ?
	`, string(p.Status), connected, roomID, p.DisconnectCount, canRejoin,
		p.KickReason, p.LeftAt, p.ID.String())
	return err
}

// ListRoomParticipants retrieves all participants assigned to a room.
func (s *SQLiteStore) ListRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, user_id, role, status, connected, room_id,
			disconnect_count, can_rejoin, kick_reason, joined_at, left_at
		FROM participants WHERE room_id = ?
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreateBreakRequest creates a new break request.
func (s *SQLiteStore) CreateBreakRequest(ctx context.Context, br *models.BreakRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO break_requests (id, instance_id, student_id, status, deny_reason, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, br.ID.String(), br.InstanceID.String(), br.StudentID.String(),
		string(br.Status), br.DenyReason, br.RequestedAt)
	return err
}

func scanBreakRequest(scan func(dest ...any) error) (*models.BreakRequest, error) {
	br := &models.BreakRequest{}
	var idStr, instanceID, studentID, status string
	var resolvedBy *string
	err := scan(&idStr, &instanceID, &studentID, &status, &br.DenyReason,
		&br.RequestedAt, &resolvedBy, &br.ResolvedAt)
	if err != nil {
		return nil, err
	}
	br.ID = uuid.MustParse(idStr)
	br.InstanceID = uuid.MustParse(instanceID)
	br.StudentID = uuid.MustParse(studentID)
	br.Status = models.BreakStatus(status)
	if resolvedBy != nil {
		id := uuid.MustParse(*resolvedBy)
		br.ResolvedBy = &id
	}
	return br, nil
}

// GetBreakRequest retrieves a break request by ID.
func (s *SQLiteStore) GetBreakRequest(ctx context.Context, id uuid.UUID) (*models.BreakRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, student_id, status, deny_reason, requested_at, resolved_by, resolved_at
		FROM break_requests WHERE id = ?
	`, id.String())
	br, err := scanBreakRequest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return br, nil
}

// GetPendingBreakRequest retrieves the pending break request for a student, if any.
func (s *SQLiteStore) GetPendingBreakRequest(ctx context.Context, instanceID, studentID uuid.UUID) (*models.BreakRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, student_id, status, deny_reason, requested_at, resolved_by, resolved_at
		FROM break_requests
		WHERE instance_id = ? AND student_id = ? AND status = ?
		ORDER BY requested_at DESC LIMIT 1
	`, instanceID.String(), studentID.String(), string(models.BreakPending))
	br, err := scanBreakRequest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return br, nil
}

// UpdateBreakRequest saves a break request row.
func (s *SQLiteStore) UpdateBreakRequest(ctx context.Context, br *models.BreakRequest) error {
	var resolvedBy *string
	if br.ResolvedBy != nil {
		str := br.ResolvedBy.String()
		resolvedBy = &str
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE break_requests SET status = ?, deny_reason = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?
	`, string(br.Status), br.DenyReason, resolvedBy, br.ResolvedAt, br.ID.String())
	return err
}

// CreateFlag creates a new flag.
func (s *SQLiteStore) CreateFlag(ctx context.Context, f *models.Flag) error {
	escalated := 0
	if f.IsEscalated {
		escalated = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (id, instance_id, student_id, raised_by, raised_role,
			reason, status, is_escalated, resolution, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID.String(), f.InstanceID.String(), f.StudentID.String(),
		f.RaisedBy.String(), string(f.RaisedRole), f.Reason, string(f.Status),
		escalated, f.Resolution, f.CreatedAt)
	return err
}

// GetFlag retrieves a flag by ID.
func (s *SQLiteStore) GetFlag(ctx context.Context, id uuid.UUID) (*models.Flag, error) {
	f := &models.Flag{}
	var idStr, instanceID, studentID, raisedBy, raisedRole, status string
	var escalated int
	var escalatedBy, resolvedBy *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, student_id, raised_by, raised_role, reason, status,
			is_escalated, escalated_by, escalated_at, resolution, resolved_by, resolved_at, created_at
		FROM flags WHERE id = ?
	`, id.String()).Scan(
		&idStr, &instanceID, &studentID, &raisedBy, &raisedRole, &f.Reason, &status,
		&escalated, &escalatedBy, &f.EscalatedAt, &f.Resolution, &resolvedBy,
		&f.ResolvedAt, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.ID = uuid.MustParse(idStr)
	f.InstanceID = uuid.MustParse(instanceID)
	f.StudentID = uuid.MustParse(studentID)
	f.RaisedBy = uuid.MustParse(raisedBy)
	f.RaisedRole = models.Role(raisedRole)
	f.Status = models.FlagStatus(status)
	f.IsEscalated = escalated == 1
	if escalatedBy != nil {
		id := uuid.MustParse(*escalatedBy)
		f.EscalatedBy = &id
	}
	if resolvedBy != nil {
		id := uuid.MustParse(*resolvedBy)
		f.ResolvedBy = &id
	}
	return f, nil
}

// UpdateFlag saves a flag row.
func (s *SQLiteStore) UpdateFlag(ctx context.Context, f *models.Flag) error {
	escalated := 0
	if f.IsEscalated {
		escalated = 1
	}
	var escalatedBy, resolvedBy *string
	if f.EscalatedBy != nil {
		str := f.EscalatedBy.String()
		escalatedBy = &str
	}
	if f.ResolvedBy != nil {
		str := f.ResolvedBy.String()
		resolvedBy = &str
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE flags SET status = ?, is_escalated = ?, escalated_by = ?, escalated_at = ?,
			resolution = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?
	`, string(f.Status), escalated, escalatedBy, f.EscalatedAt,
		f.Resolution, resolvedBy, f.ResolvedAt, f.ID.String())
	return err
}

// AppendEvent appends an audit event row.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *models.AuditEvent) error {
	published := 0
	if ev.Published {
		published = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, instance_id, session_id, type, emitted_by,
			emitter_role, payload, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.InstanceID.String(), ev.SessionID.String(), string(ev.Type),
		ev.EmittedBy.String(), string(ev.EmitterRole), string(ev.Payload),
		published, ev.CreatedAt)
	return err
}

// MarkEventPublished flips the published flag to true. The flag is never
// reset; repeated calls are harmless.
func (s *SQLiteStore) MarkEventPublished(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_events SET published = 1 WHERE id = ?
	`, id)
	return err
}

func scanEvent(scan func(dest ...any) error) (*models.AuditEvent, error) {
	ev := &models.AuditEvent{}
	var instanceID, sessionID, evType, emittedBy, emitterRole, payload string
	var published int
	err := scan(&ev.ID, &instanceID, &sessionID, &evType, &emittedBy,
		&emitterRole, &payload, &published, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.InstanceID = uuid.MustParse(instanceID)
	ev.SessionID = uuid.MustParse(sessionID)
	ev.Type = models.EventType(evType)
	ev.EmittedBy = uuid.MustParse(emittedBy)
	ev.EmitterRole = models.Role(emitterRole)
	ev.Payload = []byte(payload)
	ev.Published = published == 1
	return ev, nil
}

// ListInstanceEvents retrieves events for an instance in creation order,
// starting after the given event ID (exclusive; empty means from the start).
func (s *SQLiteStore) ListInstanceEvents(ctx context.Context, instanceID uuid.UUID, afterID string, limit int) ([]models.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, session_id, type, emitted_by, emitter_role,
			payload, published, created_at
		FROM audit_events
		WHERE instance_id = ? AND id > ?
		ORDER BY id ASC LIMIT ?
	`, instanceID.String(), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ListUnpublishedEvents retrieves events whose publish attempt failed,
// oldest first, for the republish sweeper.
func (s *SQLiteStore) ListUnpublishedEvents(ctx context.Context, olderThan time.Time, limit int) ([]models.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, session_id, type, emitted_by, emitter_role,
			payload, published, created_at
		FROM audit_events
		WHERE published = 0 AND created_at < ?
		ORDER BY id ASC LIMIT ?
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}
