// Package engine implements the session coordination core: the authoritative
// state machine for session instances, rooms and participants, the break and
// flag workflows, and the audit trail every transition leaves behind.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/audit"
	"github.com/proctorhq/sessiond/internal/metrics"
	"github.com/proctorhq/sessiond/internal/models"
	"github.com/proctorhq/sessiond/internal/store"
)

// Sessions may start at most this far before their scheduled time.
const earlyStartWindow = 30 * time.Minute

// Engine sequences every session operation: role checks first, then state
// validation, then mutation under the instance lock, then audit+publish.
// Nothing below the engine talks to the real-time transport.
type Engine struct {
	db       store.DataStore
	recorder *audit.Recorder
	locks    *keyedMutex
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(db store.DataStore, recorder *audit.Recorder, logger zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		recorder: recorder,
		locks:    newKeyedMutex(),
		logger:   logger,
		now:      time.Now,
	}
}

// actor loads a user and, when roles are given, requires one of them.
// Authorization always reads the live user record, not any participant
// role snapshot.
func (e *Engine) actor(ctx context.Context, id uuid.UUID, roles ...models.Role) (*models.User, error) {
	user, err := e.db.GetUser(ctx, id)
	if err != nil {
		return nil, unexpected("load user", err)
	}
	if user == nil {
		return nil, notFound("user not found")
	}
	if len(roles) > 0 {
		for _, r := range roles {
			if user.Role == r {
				return user, nil
			}
		}
		return nil, unauthorized("role %s may not perform this action", user.Role)
	}
	return user, nil
}

// activeInstance loads the session's active instance or fails.
func (e *Engine) activeInstance(ctx context.Context, sessionID uuid.UUID, missing Kind) (*models.SessionInstance, error) {
	inst, err := e.db.GetActiveInstance(ctx, sessionID)
	if err != nil {
		return nil, unexpected("load active instance", err)
	}
	if inst == nil {
		if missing == KindNotFound {
			return nil, notFound("no active instance for session")
		}
		return nil, invalidState("session is not active")
	}
	return inst, nil
}

// StartSession activates a session: creates the instance, fans out its
// rooms, and records SESSION_STARTED plus one ROOM_CREATED per room.
func (e *Engine) StartSession(ctx context.Context, sessionID, actorID uuid.UUID) (*models.SessionInstance, error) {
	admin, err := e.actor(ctx, actorID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	sess, err := e.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, unexpected("load session", err)
	}
	if sess == nil {
		return nil, notFound("session not found")
	}

	// Single-active-instance check and instance creation run under the
	// session key so concurrent starts cannot both pass the check. The
	// instance lock is taken before CreateInstance commits: a join that
	// discovers the new instance blocks on that lock until the room
	// fan-out is complete, so no student lands Waiting against a
	// half-created room set.
	unlock := e.locks.lock(sessionID)

	existing, err := e.db.GetActiveInstance(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, unexpected("load active instance", err)
	}
	if existing != nil {
		unlock()
		return nil, conflict("session already has an active instance")
	}

	if e.now().Before(sess.ScheduledStart.Add(-earlyStartWindow)) {
		unlock()
		return nil, invalidState("session cannot start more than %d minutes early", int(earlyStartWindow.Minutes()))
	}

	inst := &models.SessionInstance{
		ID:        uuid.New(),
		SessionID: sessionID,
		Status:    models.InstanceActive,
		StartedBy: actorID,
		StartedAt: e.now().UTC(),
	}
	unlockInst := e.locks.lock(inst.ID)
	if err := e.db.CreateInstance(ctx, inst); err != nil {
		unlockInst()
		unlock()
		return nil, unexpected("create instance", err)
	}
	unlock()

	rooms := make([]*models.Room, 0, sess.NumberOfRooms)
	for i := 0; i < sess.NumberOfRooms; i++ {
		room := &models.Room{
			ID:         uuid.New(),
			InstanceID: inst.ID,
			Name:       fmt.Sprintf("Room %d", i+1),
			Active:     true,
			CreatedAt:  e.now().UTC(),
		}
		if err := e.db.CreateRoom(ctx, room); err != nil {
			unlockInst()
			return nil, unexpected("create room", err)
		}
		rooms = append(rooms, room)
	}
	unlockInst()

	actor := models.Actor{UserID: admin.ID, Role: admin.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.SessionStartedPayload{
		SessionName:   sess.Name,
		NumberOfRooms: sess.NumberOfRooms,
	}); err != nil {
		return nil, unexpected("record session start", err)
	}
	for _, room := range rooms {
		if _, err := e.recorder.Record(ctx, inst, actor, models.RoomCreatedPayload{
			RoomID: room.ID,
			Name:   room.Name,
		}); err != nil {
			return nil, unexpected("record room creation", err)
		}
	}

	metrics.SessionsStarted.Inc()
	e.logger.Info().
		Str("session_id", sessionID.String()).
		Str("instance_id", inst.ID.String()).
		Int("rooms", sess.NumberOfRooms).
		Msg("session started")
	return inst, nil
}

// EndSession marks the active instance ended. Rooms and participants stay
// in place for the audit trail.
func (e *Engine) EndSession(ctx context.Context, sessionID, actorID uuid.UUID) error {
	admin, err := e.actor(ctx, actorID, models.RoleAdmin)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	inst.Status = models.InstanceEnded
	inst.EndedBy = &actorID
	inst.EndedAt = &now
	if err := e.db.UpdateInstance(ctx, inst); err != nil {
		return unexpected("end instance", err)
	}

	actor := models.Actor{UserID: admin.ID, Role: admin.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.SessionEndedPayload{EndedBy: actorID}); err != nil {
		return unexpected("record session end", err)
	}

	metrics.SessionsEnded.Inc()
	e.logger.Info().Str("instance_id", inst.ID.String()).Msg("session ended")
	return nil
}

// CreateRoom adds a room to the active instance.
func (e *Engine) CreateRoom(ctx context.Context, sessionID, actorID uuid.UUID, name string) (*models.Room, error) {
	assessor, err := e.actor(ctx, actorID, models.RoleAssessor)
	if err != nil {
		return nil, err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(inst.ID)
	room := &models.Room{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		Name:       name,
		Active:     true,
		CreatedAt:  e.now().UTC(),
	}
	err = e.db.CreateRoom(ctx, room)
	unlock()
	if err != nil {
		return nil, unexpected("create room", err)
	}

	actor := models.Actor{UserID: assessor.ID, Role: assessor.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.RoomCreatedPayload{
		RoomID: room.ID,
		Name:   room.Name,
	}); err != nil {
		return nil, unexpected("record room creation", err)
	}
	return room, nil
}

// CallNextStudents creates a fresh room and moves the requested students
// plus the calling assessor into it. Validation is all-or-nothing: if any
// requested student is unknown, already roomed, or kicked, nothing is
// assigned.
func (e *Engine) CallNextStudents(ctx context.Context, sessionID, actorID uuid.UUID, studentIDs []uuid.UUID) (*models.Room, error) {
	assessor, err := e.actor(ctx, actorID, models.RoleAssessor)
	if err != nil {
		return nil, err
	}

	if len(studentIDs) == 0 {
		return nil, invalidState("no students requested")
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return nil, err
	}

	sess, err := e.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, unexpected("load session", err)
	}
	if len(studentIDs) > sess.MaxStudentsPerRoom {
		return nil, invalidState("requested %d students exceeds room capacity %d", len(studentIDs), sess.MaxStudentsPerRoom)
	}

	unlock := e.locks.lock(inst.ID)
	room, callErr := e.callNextLocked(ctx, inst, sess, assessor, studentIDs)
	unlock()
	if callErr != nil {
		return nil, callErr
	}

	actor := models.Actor{UserID: assessor.ID, Role: assessor.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.RoomCreatedPayload{
		RoomID: room.ID,
		Name:   room.Name,
	}); err != nil {
		return nil, unexpected("record room creation", err)
	}
	if _, err := e.recorder.Record(ctx, inst, actor, models.CallNextStudentsPayload{
		RoomID:     room.ID,
		StudentIDs: studentIDs,
		CalledBy:   actorID,
	}); err != nil {
		return nil, unexpected("record call next", err)
	}
	return room, nil
}

// callNextLocked performs the validate-then-mutate-then-persist body of
// CallNextStudents under the instance lock.
func (e *Engine) callNextLocked(ctx context.Context, inst *models.SessionInstance, sess *models.Session, assessor *models.User, studentIDs []uuid.UUID) (*models.Room, error) {
	seen := make(map[uuid.UUID]bool, len(studentIDs))
	participants := make([]*models.Participant, 0, len(studentIDs))
	for _, sid := range studentIDs {
		if seen[sid] {
			return nil, invalidState("duplicate student in request")
		}
		seen[sid] = true

		p, err := e.db.GetParticipant(ctx, inst.ID, sid)
		if err != nil {
			return nil, unexpected("load participant", err)
		}
		if p == nil {
			return nil, invalidState("student has not joined the session")
		}
		if p.Status == models.ParticipantKicked {
			return nil, invalidState("student has been kicked")
		}
		if p.RoomID != nil {
			return nil, invalidState("student is already assigned to a room")
		}
		participants = append(participants, p)
	}

	rooms, err := e.db.ListRooms(ctx, inst.ID)
	if err != nil {
		return nil, unexpected("list rooms", err)
	}
	room := &models.Room{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		Name:       fmt.Sprintf("Room %d", len(rooms)+1),
		Active:     true,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.db.CreateRoom(ctx, room); err != nil {
		return nil, unexpected("create room", err)
	}

	for _, p := range participants {
		roomID := room.ID
		p.RoomID = &roomID
		p.Status = models.ParticipantInRoom
		if err := e.db.UpdateParticipant(ctx, p); err != nil {
			return nil, unexpected("assign student", err)
		}
	}

	// The calling assessor follows the students into the room. An assessor
	// who never joined gets a participant row created on the spot.
	ap, err := e.db.GetParticipant(ctx, inst.ID, assessor.ID)
	if err != nil {
		return nil, unexpected("load assessor participant", err)
	}
	roomID := room.ID
	if ap == nil {
		ap = &models.Participant{
			ID:         uuid.New(),
			InstanceID: inst.ID,
			UserID:     assessor.ID,
			Role:       assessor.Role,
			Status:     models.ParticipantInRoom,
			Connected:  true,
			RoomID:     &roomID,
			JoinedAt:   e.now().UTC(),
		}
		if err := e.db.CreateParticipant(ctx, ap); err != nil {
			return nil, unexpected("create assessor participant", err)
		}
	} else {
		ap.RoomID = &roomID
		ap.Status = models.ParticipantInRoom
		if err := e.db.UpdateParticipant(ctx, ap); err != nil {
			return nil, unexpected("assign assessor", err)
		}
	}

	return room, nil
}
