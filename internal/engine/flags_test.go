package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

func (env *testEnv) joinedStudent(t *testing.T, sess *models.Session) *models.User {
	t.Helper()
	student := env.createUser(t, models.RoleStudent)
	if _, err := env.eng.Join(context.Background(), sess.ID, student.ID); err != nil {
		t.Fatalf("join student: %v", err)
	}
	return student
}

func TestFlagUserByAssessor(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "looking off screen")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}
	if f.Status != models.FlagPending {
		t.Errorf("flag status = %s, want pending", f.Status)
	}
	if f.RaisedRole != models.RoleAssessor {
		t.Errorf("raised role = %s, want assessor", f.RaisedRole)
	}
	if got := env.eventsOfType(t, inst.ID, models.EventFlagUser); len(got) != 1 {
		t.Errorf("got %d FLAG_USER events, want 1", len(got))
	}
}

func TestFlagUserRoleMismatch(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	mod := env.createUser(t, models.RoleModerator)
	assessor := env.createUser(t, models.RoleAssessor)

	if _, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, mod.ID, "x"); KindOf(err) != KindUnauthorized {
		t.Errorf("moderator on assessor path: kind = %v, want unauthorized", KindOf(err))
	}
	if _, err := env.eng.ModeratorFlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "x"); KindOf(err) != KindUnauthorized {
		t.Errorf("assessor on moderator path: kind = %v, want unauthorized", KindOf(err))
	}
}

func TestFlagUnknownStudent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)

	_, err := env.eng.FlagUser(context.Background(), sess.ID, uuid.New(), assessor.ID, "x")
	wantKind(t, err, KindInvalidState)
}

func TestEscalateFlagOnce(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)
	mod := env.createUser(t, models.RoleModerator)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "suspicious")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}

	if err := env.eng.EscalateFlag(context.Background(), sess.ID, f.ID, mod.ID); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	got, _ := env.db.GetFlag(context.Background(), f.ID)
	if !got.IsEscalated {
		t.Error("flag not marked escalated")
	}
	if got.Status != models.FlagPending {
		t.Errorf("escalation changed status to %s, want pending", got.Status)
	}

	err = env.eng.EscalateFlag(context.Background(), sess.ID, f.ID, mod.ID)
	wantKind(t, err, KindInvalidState)

	if got := env.eventsOfType(t, inst.ID, models.EventFlagEscalated); len(got) != 1 {
		t.Errorf("got %d FLAG_ESCALATED events, want 1", len(got))
	}
}

// Accepting a flag kicks the student and records exactly two events, the
// acceptance followed by the kick.
func TestAcceptFlagKicksStudent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)
	mod := env.createUser(t, models.RoleModerator)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "copied answers")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}

	before := len(env.events(t, inst.ID))
	if err := env.eng.AcceptFlag(context.Background(), sess.ID, f.ID, mod.ID, "confirmed on recording"); err != nil {
		t.Fatalf("accept flag: %v", err)
	}

	events := env.events(t, inst.ID)
	if len(events) != before+2 {
		t.Fatalf("acceptance produced %d new events, want 2", len(events)-before)
	}
	if events[before].Type != models.EventFlagAccepted || events[before+1].Type != models.EventUserKicked {
		t.Errorf("event order = %s, %s; want FLAG_ACCEPTED, USER_KICKED",
			events[before].Type, events[before+1].Type)
	}

	p, _ := env.db.GetParticipant(context.Background(), inst.ID, student.ID)
	if p.Status != models.ParticipantKicked {
		t.Errorf("student status = %s, want kicked", p.Status)
	}
	if p.RoomID != nil {
		t.Error("kicked student still holds a room seat")
	}
	if !strings.Contains(p.KickReason, "copied answers") {
		t.Errorf("kick reason %q does not carry the flag reason", p.KickReason)
	}

	got, _ := env.db.GetFlag(context.Background(), f.ID)
	if got.Status != models.FlagAccepted {
		t.Errorf("flag status = %s, want accepted", got.Status)
	}
}

// Rejection is a single event and leaves the student untouched.
func TestRejectFlagKeepsStudent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)
	mod := env.createUser(t, models.RoleModerator)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "glare on camera")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}

	before := len(env.events(t, inst.ID))
	if err := env.eng.RejectFlag(context.Background(), sess.ID, f.ID, mod.ID, "reflection, not a device"); err != nil {
		t.Fatalf("reject flag: %v", err)
	}
	events := env.events(t, inst.ID)
	if len(events) != before+1 {
		t.Fatalf("rejection produced %d new events, want 1", len(events)-before)
	}
	if events[before].Type != models.EventFlagRejected {
		t.Errorf("event type = %s, want FLAG_REJECTED", events[before].Type)
	}

	p, _ := env.db.GetParticipant(context.Background(), inst.ID, student.ID)
	if p.Status != models.ParticipantInRoom {
		t.Errorf("student status = %s, want in_room", p.Status)
	}
}

// Accepting a flag against an already-kicked student must fail before any
// mutation: the flag stays pending and no events are recorded.
func TestAcceptFlagOnKickedStudent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)
	mod := env.createUser(t, models.RoleModerator)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "whispering")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}
	if err := env.eng.KickStudent(context.Background(), sess.ID, student.ID, mod.ID, "direct kick"); err != nil {
		t.Fatalf("kick: %v", err)
	}

	before := len(env.events(t, inst.ID))
	err = env.eng.AcceptFlag(context.Background(), sess.ID, f.ID, mod.ID, "moot")
	wantKind(t, err, KindInvalidState)

	got, _ := env.db.GetFlag(context.Background(), f.ID)
	if got.Status != models.FlagPending {
		t.Errorf("flag status = %s, want pending after rejected acceptance", got.Status)
	}
	if after := len(env.events(t, inst.ID)); after != before {
		t.Errorf("rejected acceptance recorded %d events, want 0", after-before)
	}
}

func TestResolveFlagTwice(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	assessor := env.createUser(t, models.RoleAssessor)
	mod := env.createUser(t, models.RoleModerator)

	f, err := env.eng.FlagUser(context.Background(), sess.ID, student.ID, assessor.ID, "x")
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}
	if err := env.eng.RejectFlag(context.Background(), sess.ID, f.ID, mod.ID, "ok"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	err = env.eng.AcceptFlag(context.Background(), sess.ID, f.ID, mod.ID, "too late")
	wantKind(t, err, KindInvalidState)
}

func TestKickStudentDirect(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 2, 1)
	inst, _ := env.startSession(t, sess)
	student := env.joinedStudent(t, sess)
	mod := env.createUser(t, models.RoleModerator)

	if err := env.eng.KickStudent(context.Background(), sess.ID, student.ID, mod.ID, "refused camera check"); err != nil {
		t.Fatalf("kick: %v", err)
	}

	p, _ := env.db.GetParticipant(context.Background(), inst.ID, student.ID)
	if p.Status != models.ParticipantKicked {
		t.Errorf("status = %s, want kicked", p.Status)
	}
	if got := env.eventsOfType(t, inst.ID, models.EventUserKicked); len(got) != 1 {
		t.Errorf("got %d USER_KICKED events, want 1", len(got))
	}

	// Kicking a kicked participant is rejected.
	err := env.eng.KickStudent(context.Background(), sess.ID, student.ID, mod.ID, "again")
	wantKind(t, err, KindInvalidState)
}

// Kicking a waiting student frees no seat but still lands the terminal state.
func TestKickWaitingStudent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t, 1, 1)
	inst, _ := env.startSession(t, sess)
	env.joinedStudent(t, sess)
	waiting := env.joinedStudent(t, sess)
	mod := env.createUser(t, models.RoleModerator)

	if err := env.eng.KickStudent(context.Background(), sess.ID, waiting.ID, mod.ID, "no id shown"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	p, _ := env.db.GetParticipant(context.Background(), inst.ID, waiting.ID)
	if p.Status != models.ParticipantKicked {
		t.Errorf("status = %s, want kicked", p.Status)
	}
}
