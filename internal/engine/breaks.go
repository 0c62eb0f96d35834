package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

// RequestBreak opens a pending break request for the calling student.
// A student can hold at most one pending request at a time.
func (e *Engine) RequestBreak(ctx context.Context, sessionID, actorID uuid.UUID) (*models.BreakRequest, error) {
	student, err := e.actor(ctx, actorID, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindInvalidState)
	if err != nil {
		return nil, err
	}

	p, err := e.db.GetParticipant(ctx, inst.ID, actorID)
	if err != nil {
		return nil, unexpected("load participant", err)
	}
	if p == nil {
		return nil, invalidState("student has not joined the session")
	}
	if p.Terminal() {
		return nil, invalidState("participant was kicked")
	}

	pending, err := e.db.GetPendingBreakRequest(ctx, inst.ID, actorID)
	if err != nil {
		return nil, unexpected("load pending break request", err)
	}
	if pending != nil {
		return nil, invalidState("a break request is already pending")
	}

	br := &models.BreakRequest{
		ID:          uuid.New(),
		InstanceID:  inst.ID,
		StudentID:   actorID,
		Status:      models.BreakPending,
		RequestedAt: e.now().UTC(),
	}
	if err := e.db.CreateBreakRequest(ctx, br); err != nil {
		return nil, unexpected("create break request", err)
	}

	actor := models.Actor{UserID: student.ID, Role: student.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.BreakRequestedPayload{
		RequestID: br.ID,
		StudentID: actorID,
	}); err != nil {
		return nil, unexpected("record break request", err)
	}
	return br, nil
}

// ApproveBreak approves a pending request and moves the student on break,
// releasing their room seat.
func (e *Engine) ApproveBreak(ctx context.Context, sessionID, requestID, actorID uuid.UUID) error {
	mod, err := e.actor(ctx, actorID, models.RoleModerator, models.RoleAdmin)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	br, err := e.db.GetBreakRequest(ctx, requestID)
	if err != nil {
		return unexpected("load break request", err)
	}
	if br == nil {
		return notFound("break request not found")
	}
	if br.Status != models.BreakPending {
		return invalidState("break request is not pending")
	}

	now := e.now().UTC()
	br.Status = models.BreakApproved
	br.ResolvedBy = &actorID
	br.ResolvedAt = &now
	if err := e.db.UpdateBreakRequest(ctx, br); err != nil {
		return unexpected("update break request", err)
	}

	// Clearing the room seat mutates capacity, so it runs under the lock.
	// Only in-room and waiting students move on break; a student who left
	// or was kicked in the meantime keeps their status.
	unlock := e.locks.lock(inst.ID)
	p, perr := e.db.GetParticipant(ctx, inst.ID, br.StudentID)
	if perr == nil && p != nil &&
		(p.Status == models.ParticipantInRoom || p.Status == models.ParticipantWaiting) {
		p.Status = models.ParticipantOnBreak
		p.RoomID = nil
		perr = e.db.UpdateParticipant(ctx, p)
	}
	unlock()
	if perr != nil {
		return unexpected("move participant on break", perr)
	}

	actor := models.Actor{UserID: mod.ID, Role: mod.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.BreakApprovedPayload{
		RequestID:  br.ID,
		StudentID:  br.StudentID,
		ApprovedBy: actorID,
	}); err != nil {
		return unexpected("record break approval", err)
	}
	return nil
}

// DenyBreak denies a pending request with a reason. Denial has no room-state
// side effect, so no event is published for it.
func (e *Engine) DenyBreak(ctx context.Context, sessionID, requestID, actorID uuid.UUID, reason string) error {
	if _, err := e.actor(ctx, actorID, models.RoleModerator, models.RoleAdmin); err != nil {
		return err
	}

	if _, err := e.activeInstance(ctx, sessionID, KindNotFound); err != nil {
		return err
	}

	br, err := e.db.GetBreakRequest(ctx, requestID)
	if err != nil {
		return unexpected("load break request", err)
	}
	if br == nil {
		return notFound("break request not found")
	}
	if br.Status != models.BreakPending {
		return invalidState("break request is not pending")
	}

	now := e.now().UTC()
	br.Status = models.BreakDenied
	br.DenyReason = reason
	br.ResolvedBy = &actorID
	br.ResolvedAt = &now
	if err := e.db.UpdateBreakRequest(ctx, br); err != nil {
		return unexpected("update break request", err)
	}
	return nil
}

// ReturnFromBreak brings a student back from break, in-room if the
// allocator finds a seat and waiting otherwise.
func (e *Engine) ReturnFromBreak(ctx context.Context, sessionID, actorID uuid.UUID) (*models.Participant, error) {
	user, err := e.actor(ctx, actorID)
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

	unlock := e.locks.lock(inst.ID)
	p, retErr := e.returnLocked(ctx, inst, sess, user.ID)
	unlock()
	if retErr != nil {
		return nil, retErr
	}

	actor := models.Actor{UserID: user.ID, Role: user.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.ReturnedFromBreakPayload{
		StudentID: user.ID,
		RoomID:    p.RoomID,
	}); err != nil {
		return nil, unexpected("record return from break", err)
	}
	return p, nil
}

func (e *Engine) returnLocked(ctx context.Context, inst *models.SessionInstance, sess *models.Session, userID uuid.UUID) (*models.Participant, error) {
	p, err := e.db.GetParticipant(ctx, inst.ID, userID)
	if err != nil {
		return nil, unexpected("load participant", err)
	}
	if p == nil {
		return nil, notFound("participant not found")
	}
	if p.Status != models.ParticipantOnBreak {
		return nil, invalidState("participant is not on break")
	}

	room, err := e.findAvailableRoom(ctx, inst.ID, sess.MaxStudentsPerRoom)
	if err != nil {
		return nil, err
	}
	if room == nil {
		p.Status = models.ParticipantWaiting
		p.RoomID = nil
	} else {
		roomID := room.ID
		p.Status = models.ParticipantInRoom
		p.RoomID = &roomID
	}
	if err := e.db.UpdateParticipant(ctx, p); err != nil {
		return nil, unexpected("update participant", err)
	}
	return p, nil
}
