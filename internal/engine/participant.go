package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/metrics"
	"github.com/proctorhq/sessiond/internal/models"
)

// Students are blocked after this many recorded disconnects unless a
// moderator grants rejoin permission.
const maxDisconnects = 3

// Join admits a user into the active instance, or reconnects an existing
// participant.
//
// Students are placed by the allocator: a free room means in-room, a full
// house means waiting. Non-students are always admitted in-room without a
// room assignment (they move via CallNextStudents). A kicked participant
// can never rejoin; a student at the disconnect limit needs a one-shot
// rejoin grant.
func (e *Engine) Join(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	user, err := e.actor(ctx, userID)
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

	inst, err := e.activeInstance(ctx, sessionID, KindInvalidState)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if user.Role == models.RoleStudent {
		if now.Before(sess.ReportingStart) {
			return nil, invalidState("reporting window has not opened")
		}
		if now.After(sess.ReportingEnd) {
			// Allowed while the instance is active, but worth noticing.
			e.logger.Warn().
				Str("user_id", userID.String()).
				Str("session_id", sessionID.String()).
				Msg("student joining after reporting window end")
		}
	}

	// Placement reads capacity counts, so the whole join runs under the
	// instance lock.
	unlock := e.locks.lock(inst.ID)
	p, joinErr := e.joinLocked(ctx, inst, sess, user)
	unlock()
	if joinErr != nil {
		return nil, joinErr
	}

	actor := models.Actor{UserID: user.ID, Role: user.Role}
	if p.Status == models.ParticipantWaiting {
		metrics.Joins.WithLabelValues("waiting").Inc()
		if _, err := e.recorder.Record(ctx, inst, actor, models.StudentWaitingPayload{UserID: userID}); err != nil {
			return nil, unexpected("record waiting", err)
		}
	} else {
		metrics.Joins.WithLabelValues("in_room").Inc()
		if _, err := e.recorder.Record(ctx, inst, actor, models.UserJoinedPayload{
			UserID: userID,
			Role:   user.Role,
			RoomID: p.RoomID,
		}); err != nil {
			return nil, unexpected("record join", err)
		}
	}
	return p, nil
}

func (e *Engine) joinLocked(ctx context.Context, inst *models.SessionInstance, sess *models.Session, user *models.User) (*models.Participant, error) {
	p, err := e.db.GetParticipant(ctx, inst.ID, user.ID)
	if err != nil {
		return nil, unexpected("load participant", err)
	}

	if p != nil {
		return e.reconnect(ctx, inst, sess, user, p)
	}

	p = &models.Participant{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		UserID:     user.ID,
		Role:       user.Role, // snapshot at join time
		Status:     models.ParticipantInRoom,
		Connected:  true,
		JoinedAt:   e.now().UTC(),
	}

	if user.Role == models.RoleStudent {
		room, err := e.findAvailableRoom(ctx, inst.ID, sess.MaxStudentsPerRoom)
		if err != nil {
			return nil, err
		}
		if room == nil {
			p.Status = models.ParticipantWaiting
		} else {
			roomID := room.ID
			p.RoomID = &roomID
		}
	}

	if err := e.db.CreateParticipant(ctx, p); err != nil {
		return nil, unexpected("create participant", err)
	}
	return p, nil
}

// reconnect re-admits an existing participant, enforcing the kick and
// three-strike gates and retrying placement for waiting students.
func (e *Engine) reconnect(ctx context.Context, inst *models.SessionInstance, sess *models.Session, user *models.User, p *models.Participant) (*models.Participant, error) {
	if p.Status == models.ParticipantKicked {
		return nil, invalidState("participant was kicked and cannot rejoin")
	}
	if user.Role == models.RoleStudent && p.DisconnectCount >= maxDisconnects && !p.CanRejoin {
		return nil, invalidState("disconnect limit reached; rejoin requires moderator permission")
	}

	// Rejoin permission is one-shot: it covers exactly this join.
	if p.CanRejoin {
		p.CanRejoin = false
	}

	p.Connected = true
	p.LeftAt = nil
	if p.Status == models.ParticipantLeft {
		if user.Role == models.RoleStudent {
			p.Status = models.ParticipantWaiting
		} else {
			p.Status = models.ParticipantInRoom
		}
	}

	if p.Status == models.ParticipantWaiting && user.Role == models.RoleStudent {
		room, err := e.findAvailableRoom(ctx, inst.ID, sess.MaxStudentsPerRoom)
		if err != nil {
			return nil, err
		}
		if room != nil {
			roomID := room.ID
			p.RoomID = &roomID
			p.Status = models.ParticipantInRoom
		}
	}

	if err := e.db.UpdateParticipant(ctx, p); err != nil {
		return nil, unexpected("update participant", err)
	}
	return p, nil
}

// Leave marks a participant as having left. Best-effort: client-initiated,
// so it reports success rather than failing on validation; the return
// value is false only when there is nothing to leave.
func (e *Engine) Leave(ctx context.Context, sessionID, userID uuid.UUID) bool {
	return e.depart(ctx, sessionID, userID, true)
}

// Disconnect records a network-detected drop without changing the
// participant's status. Best-effort like Leave.
func (e *Engine) Disconnect(ctx context.Context, sessionID, userID uuid.UUID) bool {
	return e.depart(ctx, sessionID, userID, false)
}

func (e *Engine) depart(ctx context.Context, sessionID, userID uuid.UUID, left bool) bool {
	inst, err := e.db.GetActiveInstance(ctx, sessionID)
	if err != nil || inst == nil {
		return false
	}
	p, err := e.db.GetParticipant(ctx, inst.ID, userID)
	if err != nil || p == nil || p.Terminal() {
		return false
	}

	now := e.now().UTC()
	p.Connected = false
	p.DisconnectCount++
	if left {
		p.Status = models.ParticipantLeft
		p.RoomID = nil
		p.LeftAt = &now
	}
	if err := e.db.UpdateParticipant(ctx, p); err != nil {
		e.logger.Error().Err(err).Str("user_id", userID.String()).Msg("depart update failed")
		return false
	}

	actor := models.Actor{UserID: userID, Role: p.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.UserDisconnectedPayload{
		UserID:          userID,
		DisconnectCount: p.DisconnectCount,
		Left:            left,
	}); err != nil {
		e.logger.Error().Err(err).Str("user_id", userID.String()).Msg("depart record failed")
	}
	return true
}

// GrantRejoinPermission sets the one-shot override that lets a student past
// the disconnect limit on their next join. The counter itself is untouched.
func (e *Engine) GrantRejoinPermission(ctx context.Context, sessionID, studentID, actorID uuid.UUID) error {
	if _, err := e.actor(ctx, actorID, models.RoleModerator, models.RoleAdmin); err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	p, err := e.db.GetParticipant(ctx, inst.ID, studentID)
	if err != nil {
		return unexpected("load participant", err)
	}
	if p == nil {
		return notFound("participant not found")
	}
	if p.Terminal() {
		return invalidState("participant was kicked")
	}

	p.CanRejoin = true
	if err := e.db.UpdateParticipant(ctx, p); err != nil {
		return unexpected("update participant", err)
	}
	return nil
}
