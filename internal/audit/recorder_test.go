package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/models"
	"github.com/proctorhq/sessiond/internal/store"
)

type capturePublisher struct {
	mu       sync.Mutex
	fail     bool
	payloads [][]byte
	channels []string
}

func (c *capturePublisher) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.channels = append(c.channels, channel)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func newRecorderEnv(t *testing.T) (*Recorder, store.DataStore, *capturePublisher) {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)
	pub := &capturePublisher{}
	return NewRecorder(db, pub, zerolog.Nop()), db, pub
}

func testInstance() *models.SessionInstance {
	return &models.SessionInstance{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Status:    models.InstanceActive,
		StartedBy: uuid.New(),
		StartedAt: time.Now().UTC(),
	}
}

func TestRecordAppendsAndPublishes(t *testing.T) {
	rec, db, pub := newRecorderEnv(t)
	inst := testInstance()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	ev, err := rec.Record(context.Background(), inst, actor, models.SessionStartedPayload{
		SessionName:   "finals",
		NumberOfRooms: 2,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ev.Published {
		t.Error("event not marked published after successful publish")
	}

	stored, err := db.ListInstanceEvents(context.Background(), inst.ID, "", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("got %d stored events, want 1", len(stored))
	}
	if !stored[0].Published {
		t.Error("stored row not flagged published")
	}

	if got, want := pub.channels[0], "session:"+inst.SessionID.String(); got != want {
		t.Errorf("channel = %q, want %q", got, want)
	}
}

// The envelope on the wire carries the event identity and the typed payload.
func TestRecordEnvelopeRoundTrip(t *testing.T) {
	rec, _, pub := newRecorderEnv(t)
	inst := testInstance()
	studentID := uuid.New()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleModerator}

	ev, err := rec.Record(context.Background(), inst, actor, models.BreakApprovedPayload{
		RequestID:  uuid.New(),
		StudentID:  studentID,
		ApprovedBy: actor.UserID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	var env models.Envelope
	if err := json.Unmarshal(pub.payloads[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.EventID != ev.ID {
		t.Errorf("envelope event id = %s, want %s", env.EventID, ev.ID)
	}
	if env.Type != models.EventBreakApproved {
		t.Errorf("envelope type = %s, want BREAK_APPROVED", env.Type)
	}
	if env.SessionID != inst.SessionID {
		t.Errorf("envelope session = %s, want %s", env.SessionID, inst.SessionID)
	}

	var payload models.BreakApprovedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.StudentID != studentID {
		t.Errorf("payload student = %s, want %s", payload.StudentID, studentID)
	}
}

// A publish failure must not fail the operation; the row stays unpublished.
func TestRecordSurvivesPublishFailure(t *testing.T) {
	rec, db, pub := newRecorderEnv(t)
	pub.setFail(true)
	inst := testInstance()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	ev, err := rec.Record(context.Background(), inst, actor, models.SessionEndedPayload{EndedBy: actor.UserID})
	if err != nil {
		t.Fatalf("record should succeed despite publish failure: %v", err)
	}
	if ev.Published {
		t.Error("event marked published after failed publish")
	}

	stored, _ := db.ListInstanceEvents(context.Background(), inst.ID, "", 10)
	if len(stored) != 1 || stored[0].Published {
		t.Error("row should exist with published=false")
	}
}

func TestEventsOrderedAndPaged(t *testing.T) {
	rec, _, _ := newRecorderEnv(t)
	inst := testInstance()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	var ids []string
	for i := 0; i < 5; i++ {
		ev, err := rec.Record(context.Background(), inst, actor, models.RoomCreatedPayload{
			RoomID: uuid.New(),
			Name:   "room",
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		ids = append(ids, ev.ID)
	}

	first, err := rec.Events(context.Background(), inst.ID, "", 3)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("first page size = %d, want 3", len(first))
	}
	for i, ev := range first {
		if ev.ID != ids[i] {
			t.Errorf("page position %d = %s, want %s", i, ev.ID, ids[i])
		}
	}

	rest, err := rec.Events(context.Background(), inst.ID, first[2].ID, 10)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("second page size = %d, want 2", len(rest))
	}
	if rest[0].ID != ids[3] || rest[1].ID != ids[4] {
		t.Error("second page does not continue where the first left off")
	}
}

func TestSweeperRepublishes(t *testing.T) {
	rec, db, pub := newRecorderEnv(t)
	// Backdate rows so they clear the sweep age cutoff.
	rec.now = func() time.Time { return time.Now().Add(-time.Minute) }
	pub.setFail(true)
	inst := testInstance()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	for i := 0; i < 3; i++ {
		if _, err := rec.Record(context.Background(), inst, actor, models.SessionStartedPayload{
			SessionName:   "retry",
			NumberOfRooms: 1,
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if pub.count() != 0 {
		t.Fatalf("publisher delivered %d while failing", pub.count())
	}

	sweeper := NewSweeper(db, rec, time.Minute, zerolog.Nop())

	// Transport still down: nothing delivered, rows stay pending.
	if sent := sweeper.Sweep(context.Background()); sent != 0 {
		t.Errorf("sweep with broken transport sent %d, want 0", sent)
	}

	pub.setFail(false)
	if sent := sweeper.Sweep(context.Background()); sent != 3 {
		t.Errorf("sweep sent %d, want 3", sent)
	}

	pending, err := db.ListUnpublishedEvents(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list unpublished: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("%d rows still unpublished after sweep", len(pending))
	}

	// A second sweep finds nothing to do.
	if sent := sweeper.Sweep(context.Background()); sent != 0 {
		t.Errorf("idle sweep sent %d, want 0", sent)
	}
}

// Fresh events are left alone so the sweeper cannot race an in-flight
// publish attempt.
func TestSweeperSkipsFreshEvents(t *testing.T) {
	rec, db, pub := newRecorderEnv(t)
	pub.setFail(true)
	inst := testInstance()
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}

	if _, err := rec.Record(context.Background(), inst, actor, models.SessionEndedPayload{EndedBy: actor.UserID}); err != nil {
		t.Fatalf("record: %v", err)
	}

	pub.setFail(false)
	sweeper := NewSweeper(db, rec, time.Minute, zerolog.Nop())
	if sent := sweeper.Sweep(context.Background()); sent != 0 {
		t.Errorf("sweep republished a fresh event: sent %d", sent)
	}
}
