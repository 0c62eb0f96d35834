// Package audit owns the durable event log and the publish pipeline.
//
// Every externally observable state change appends exactly one event row
// before any publish attempt. The row is created with published=false; the
// flag flips to true only after the transport confirms success, and never
// flips back. A failed publish is recorded, not retried inline; the Sweeper
// reconciles it later.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/metrics"
	"github.com/proctorhq/sessiond/internal/models"
	"github.com/proctorhq/sessiond/internal/realtime"
	"github.com/proctorhq/sessiond/internal/store"
)

// Recorder appends audit events and hands them to the real-time channel.
type Recorder struct {
	db     store.DataStore
	pub    realtime.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(db store.DataStore, pub realtime.Publisher, logger zerolog.Logger) *Recorder {
	return &Recorder{db: db, pub: pub, logger: logger, now: time.Now}
}

// Record appends one event for the instance and attempts to publish it.
// The append is the operation's source of truth: an append failure is
// returned to the caller, a publish failure is swallowed and only logged,
// leaving published=false on the row.
func (r *Recorder) Record(ctx context.Context, inst *models.SessionInstance, actor models.Actor, payload models.EventPayload) (*models.AuditEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ev := &models.AuditEvent{
		ID:          ulid.Make().String(),
		InstanceID:  inst.ID,
		SessionID:   inst.SessionID,
		Type:        payload.Type(),
		EmittedBy:   actor.UserID,
		EmitterRole: actor.Role,
		Payload:     body,
		Published:   false,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.db.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	metrics.EventsRecorded.WithLabelValues(string(ev.Type)).Inc()

	r.attemptPublish(ctx, ev)
	return ev, nil
}

// attemptPublish sends the envelope and flips the published flag on success.
func (r *Recorder) attemptPublish(ctx context.Context, ev *models.AuditEvent) {
	envelope, err := json.Marshal(ev.Envelope())
	if err != nil {
		r.logger.Error().Err(err).Str("event_id", ev.ID).Msg("envelope marshal failed")
		return
	}

	channel := realtime.ChannelKey(ev.SessionID.String())
	if err := r.pub.Publish(ctx, channel, string(ev.Type), envelope); err != nil {
		metrics.PublishFailures.Inc()
		r.logger.Warn().Err(err).
			Str("event_id", ev.ID).
			Str("type", string(ev.Type)).
			Str("channel", channel).
			Msg("publish failed, event recorded unpublished")
		return
	}

	if err := r.db.MarkEventPublished(ctx, ev.ID); err != nil {
		// The message went out but the flag stays false; the sweeper will
		// republish, which observers must tolerate as a duplicate.
		r.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("mark published failed")
		return
	}
	ev.Published = true
}

// Republish retries the publish of a stored event. Used by the sweeper.
func (r *Recorder) Republish(ctx context.Context, ev *models.AuditEvent) bool {
	r.attemptPublish(ctx, ev)
	return ev.Published
}

// Events returns the ordered event log for an instance, for replay.
func (r *Recorder) Events(ctx context.Context, instanceID uuid.UUID, afterID string, limit int) ([]models.AuditEvent, error) {
	return r.db.ListInstanceEvents(ctx, instanceID, afterID, limit)
}
