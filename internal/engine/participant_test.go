package engine

import (
	"context"
	"testing"
	"time"

	"github.com/proctorhq/sessiond/internal/models"
)

func TestJoinPlacesStudentsUntilFull(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)

	s1 := env.createUser(t, models.RoleStudent)
	s2 := env.createUser(t, models.RoleStudent)
	s3 := env.createUser(t, models.RoleStudent)

	p1, err := env.eng.Join(context.Background(), sess.ID, s1.ID)
	if err != nil {
		t.Fatalf("join s1: %v", err)
	}
	p2, err := env.eng.Join(context.Background(), sess.ID, s2.ID)
	if err != nil {
		t.Fatalf("join s2: %v", err)
	}
	p3, err := env.eng.Join(context.Background(), sess.ID, s3.ID)
	if err != nil {
		t.Fatalf("join s3: %v", err)
	}

	if p1.Status != models.ParticipantInRoom || p1.RoomID == nil {
		t.Errorf("s1 not placed: %s", p1.Status)
	}
	if p2.Status != models.ParticipantInRoom || p2.RoomID == nil {
		t.Errorf("s2 not placed: %s", p2.Status)
	}
	if p3.Status != models.ParticipantWaiting || p3.RoomID != nil {
		t.Errorf("s3 should be waiting, got %s", p3.Status)
	}

	if got := env.eventsOfType(t, inst.ID, models.EventUserJoined); len(got) != 2 {
		t.Errorf("got %d USER_JOINED events, want 2", len(got))
	}
	if got := env.eventsOfType(t, inst.ID, models.EventStudentWaiting); len(got) != 1 {
		t.Errorf("got %d STUDENT_WAITING events, want 1", len(got))
	}
}

func TestJoinNonStudentHasNoRoom(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 1, 1)
	env.startSession(t, sess)
	mod := env.createUser(t, models.RoleModerator)

	p, err := env.eng.Join(context.Background(), sess.ID, mod.ID)
	if err != nil {
		t.Fatalf("join moderator: %v", err)
	}
	if p.Status != models.ParticipantInRoom {
		t.Errorf("status = %s, want in_room", p.Status)
	}
	if p.RoomID != nil {
		t.Error("moderator should not hold a room slot")
	}
}

func TestJoinNoActiveInstance(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	student := env.createUser(t, models.RoleStudent)

	_, err := env.eng.Join(context.Background(), sess.ID, student.ID)
	wantKind(t, err, KindInvalidState)
}

func TestJoinBeforeReportingWindow(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)

	env.now = sess.ReportingStart.Add(-time.Minute)
	_, err := env.eng.Join(context.Background(), sess.ID, student.ID)
	wantKind(t, err, KindInvalidState)

	// At the boundary the window is open.
	env.now = sess.ReportingStart
	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("join at window open: %v", err)
	}
}

func TestJoinAfterReportingWindowAllowed(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)

	env.now = sess.ReportingEnd.Add(time.Minute)
	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("late join should be allowed while instance is active: %v", err)
	}
}

// Rejoining must reuse the existing participant row, never create a second.
func TestRejoinIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)

	first, err := env.eng.Join(context.Background(), sess.ID, student.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !env.eng.Leave(context.Background(), sess.ID, student.ID) {
		t.Fatal("leave reported failure")
	}

	second, err := env.eng.Join(context.Background(), sess.ID, student.ID)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if second.ID != first.ID {
		t.Error("rejoin created a second participant row")
	}
	if second.Status != models.ParticipantInRoom {
		t.Errorf("rejoined status = %s, want in_room", second.Status)
	}

	parts, err := env.db.ListRoomParticipants(context.Background(), *second.RoomID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("room holds %d participant rows, want 1", len(parts))
	}
	if got := env.eventsOfType(t, inst.ID, models.EventUserDisconnected); len(got) != 1 {
		t.Errorf("got %d USER_DISCONNECTED events, want 1", len(got))
	}
}

func TestDisconnectKeepsStatus(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)

	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !env.eng.Disconnect(context.Background(), sess.ID, student.ID) {
		t.Fatal("disconnect reported failure")
	}

	p, _ := env.db.GetParticipant(context.Background(), inst.ID, student.ID)
	if p.Status != models.ParticipantInRoom {
		t.Errorf("status after disconnect = %s, want in_room", p.Status)
	}
	if p.Connected {
		t.Error("participant still marked connected")
	}
	if p.RoomID == nil {
		t.Error("disconnect should not release the room slot")
	}
	if p.DisconnectCount != 1 {
		t.Errorf("disconnect count = %d, want 1", p.DisconnectCount)
	}
}

func TestDepartOnUnknownParticipant(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)

	if env.eng.Leave(context.Background(), sess.ID, student.ID) {
		t.Error("leave succeeded for a user who never joined")
	}
	if env.eng.Disconnect(context.Background(), sess.ID, student.ID) {
		t.Error("disconnect succeeded for a user who never joined")
	}
}

func TestDisconnectLimitAndRejoinGrant(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)
	mod := env.createUser(t, models.RoleModerator)

	join := func() error {
		_, err := env.eng.Join(context.Background(), sess.ID, student.ID)
		return err
	}

	if err := join(); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	for i := 0; i < maxDisconnects; i++ {
		if !env.eng.Disconnect(context.Background(), sess.ID, student.ID) {
			t.Fatalf("disconnect %d failed", i+1)
		}
		if i < maxDisconnects-1 {
			if err := join(); err != nil {
				t.Fatalf("rejoin %d: %v", i+1, err)
			}
		}
	}

	// At the limit rejoin is blocked.
	wantKind(t, join(), KindInvalidState)

	if err := env.eng.GrantRejoinPermission(context.Background(), sess.ID, student.ID, mod.ID); err != nil {
		t.Fatalf("grant rejoin: %v", err)
	}
	if err := join(); err != nil {
		t.Fatalf("rejoin after grant: %v", err)
	}

	// The grant is one-shot: next rejoin past the limit is blocked again.
	env.eng.Disconnect(context.Background(), sess.ID, student.ID)
	wantKind(t, join(), KindInvalidState)
}

func TestGrantRejoinRequiresModerator(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)
	assessor := env.createUser(t, models.RoleAssessor)

	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := env.eng.GrantRejoinPermission(context.Background(), sess.ID, student.ID, assessor.ID)
	wantKind(t, err, KindUnauthorized)
}

func TestKickedParticipantCannotRejoin(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.createUser(t, models.RoleStudent)
	mod := env.createUser(t, models.RoleModerator)

	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := env.eng.KickStudent(context.Background(), sess.ID, student.ID, mod.ID, "talking"); err != nil {
		t.Fatalf("kick: %v", err)
	}

	_, err := env.eng.Join(context.Background(), sess.ID, student.ID)
	wantKind(t, err, KindInvalidState)

	// Not even a rejoin grant helps a kicked participant.
	err = env.eng.GrantRejoinPermission(context.Background(), sess.ID, student.ID, mod.ID)
	wantKind(t, err, KindInvalidState)
}
