package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/metrics"
	"github.com/proctorhq/sessiond/internal/models"
)

// FlagUser raises a flag against a student on behalf of an assessor.
func (e *Engine) FlagUser(ctx context.Context, sessionID, studentID, actorID uuid.UUID, reason string) (*models.Flag, error) {
	return e.raiseFlag(ctx, sessionID, studentID, actorID, reason, models.RoleAssessor)
}

// ModeratorFlagUser raises a flag against a student on behalf of a moderator.
func (e *Engine) ModeratorFlagUser(ctx context.Context, sessionID, studentID, actorID uuid.UUID, reason string) (*models.Flag, error) {
	return e.raiseFlag(ctx, sessionID, studentID, actorID, reason, models.RoleModerator)
}

func (e *Engine) raiseFlag(ctx context.Context, sessionID, studentID, actorID uuid.UUID, reason string, required models.Role) (*models.Flag, error) {
	raiser, err := e.actor(ctx, actorID, required)
	if err != nil {
		return nil, err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindInvalidState)
	if err != nil {
		return nil, err
	}

	p, err := e.db.GetParticipant(ctx, inst.ID, studentID)
	if err != nil {
		return nil, unexpected("load participant", err)
	}
	if p == nil {
		return nil, invalidState("student is not in the session")
	}

	f := &models.Flag{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		StudentID:  studentID,
		RaisedBy:   actorID,
		RaisedRole: raiser.Role,
		Reason:     reason,
		Status:     models.FlagPending,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.db.CreateFlag(ctx, f); err != nil {
		return nil, unexpected("create flag", err)
	}
	metrics.FlagsRaised.WithLabelValues(string(raiser.Role)).Inc()

	actor := models.Actor{UserID: raiser.ID, Role: raiser.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.FlagUserPayload{
		FlagID:    f.ID,
		StudentID: studentID,
		RaisedBy:  actorID,
		Reason:    reason,
	}); err != nil {
		return nil, unexpected("record flag", err)
	}
	return f, nil
}

// EscalateFlag marks a pending flag as escalated. Escalation is a side note
// on the flag, not a status change; the flag stays pending until
// adjudicated.
func (e *Engine) EscalateFlag(ctx context.Context, sessionID, flagID, actorID uuid.UUID) error {
	mod, err := e.actor(ctx, actorID, models.RoleModerator)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	f, err := e.db.GetFlag(ctx, flagID)
	if err != nil {
		return unexpected("load flag", err)
	}
	if f == nil {
		return notFound("flag not found")
	}
	if f.IsEscalated {
		return invalidState("flag is already escalated")
	}

	now := e.now().UTC()
	f.IsEscalated = true
	f.EscalatedBy = &actorID
	f.EscalatedAt = &now
	if err := e.db.UpdateFlag(ctx, f); err != nil {
		return unexpected("update flag", err)
	}

	actor := models.Actor{UserID: mod.ID, Role: mod.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.FlagEscalatedPayload{
		FlagID:      flagID,
		EscalatedBy: actorID,
	}); err != nil {
		return unexpected("record escalation", err)
	}
	return nil
}

// AcceptFlag accepts a pending flag and, as one logical operation, kicks
// the flagged student. The audit trail records cause and effect as two
// events: FLAG_ACCEPTED then USER_KICKED.
func (e *Engine) AcceptFlag(ctx context.Context, sessionID, flagID, actorID uuid.UUID, resolution string) error {
	mod, err := e.actor(ctx, actorID, models.RoleModerator)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	// Validate the kick target before touching the flag, so a rejected
	// acceptance leaves the flag pending and records nothing.
	f, err := e.db.GetFlag(ctx, flagID)
	if err != nil {
		return unexpected("load flag", err)
	}
	if f == nil {
		return notFound("flag not found")
	}
	if f.Status != models.FlagPending {
		return invalidState("flag is not pending")
	}
	p, err := e.db.GetParticipant(ctx, inst.ID, f.StudentID)
	if err != nil {
		return unexpected("load participant", err)
	}
	if p == nil {
		return notFound("participant not found")
	}
	if p.Terminal() {
		return invalidState("participant is already kicked")
	}

	f, err = e.resolveFlag(ctx, flagID, actorID, models.FlagAccepted, resolution)
	if err != nil {
		return err
	}

	kickReason := fmt.Sprintf("flag accepted: %s", f.Reason)
	if err := e.kickParticipant(ctx, inst, f.StudentID, kickReason); err != nil {
		return err
	}

	actor := models.Actor{UserID: mod.ID, Role: mod.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.FlagAcceptedPayload{
		FlagID:     f.ID,
		StudentID:  f.StudentID,
		Resolution: resolution,
	}); err != nil {
		return unexpected("record flag acceptance", err)
	}
	if _, err := e.recorder.Record(ctx, inst, actor, models.UserKickedPayload{
		UserID:   f.StudentID,
		KickedBy: actorID,
		Reason:   kickReason,
	}); err != nil {
		return unexpected("record kick", err)
	}
	return nil
}

// RejectFlag rejects a pending flag. The student's state is untouched.
func (e *Engine) RejectFlag(ctx context.Context, sessionID, flagID, actorID uuid.UUID, resolution string) error {
	mod, err := e.actor(ctx, actorID, models.RoleModerator)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	f, err := e.resolveFlag(ctx, flagID, actorID, models.FlagRejected, resolution)
	if err != nil {
		return err
	}

	actor := models.Actor{UserID: mod.ID, Role: mod.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.FlagRejectedPayload{
		FlagID:     f.ID,
		StudentID:  f.StudentID,
		Resolution: resolution,
	}); err != nil {
		return unexpected("record flag rejection", err)
	}
	return nil
}

// resolveFlag moves a pending flag to a terminal status.
func (e *Engine) resolveFlag(ctx context.Context, flagID, actorID uuid.UUID, status models.FlagStatus, resolution string) (*models.Flag, error) {
	f, err := e.db.GetFlag(ctx, flagID)
	if err != nil {
		return nil, unexpected("load flag", err)
	}
	if f == nil {
		return nil, notFound("flag not found")
	}
	if f.Status != models.FlagPending {
		return nil, invalidState("flag is not pending")
	}

	now := e.now().UTC()
	f.Status = status
	f.Resolution = resolution
	f.ResolvedBy = &actorID
	f.ResolvedAt = &now
	if err := e.db.UpdateFlag(ctx, f); err != nil {
		return nil, unexpected("update flag", err)
	}
	return f, nil
}

// KickStudent removes a student directly, without a flag record.
func (e *Engine) KickStudent(ctx context.Context, sessionID, studentID, actorID uuid.UUID, reason string) error {
	mod, err := e.actor(ctx, actorID, models.RoleModerator, models.RoleAdmin)
	if err != nil {
		return err
	}

	inst, err := e.activeInstance(ctx, sessionID, KindNotFound)
	if err != nil {
		return err
	}

	if err := e.kickParticipant(ctx, inst, studentID, reason); err != nil {
		return err
	}

	actor := models.Actor{UserID: mod.ID, Role: mod.Role}
	if _, err := e.recorder.Record(ctx, inst, actor, models.UserKickedPayload{
		UserID:   studentID,
		KickedBy: actorID,
		Reason:   reason,
	}); err != nil {
		return unexpected("record kick", err)
	}
	return nil
}

// kickParticipant applies the terminal kick transition.
func (e *Engine) kickParticipant(ctx context.Context, inst *models.SessionInstance, userID uuid.UUID, reason string) error {
	p, err := e.db.GetParticipant(ctx, inst.ID, userID)
	if err != nil {
		return unexpected("load participant", err)
	}
	if p == nil {
		return notFound("participant not found")
	}
	if p.Terminal() {
		return invalidState("participant is already kicked")
	}

	p.Status = models.ParticipantKicked
	p.Connected = false
	p.RoomID = nil
	p.KickReason = reason
	if err := e.db.UpdateParticipant(ctx, p); err != nil {
		return unexpected("update participant", err)
	}
	metrics.Kicks.Inc()
	return nil
}
