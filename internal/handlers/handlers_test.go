package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/api"
	"github.com/proctorhq/sessiond/internal/audit"
	"github.com/proctorhq/sessiond/internal/engine"
	"github.com/proctorhq/sessiond/internal/models"
	"github.com/proctorhq/sessiond/internal/realtime"
	"github.com/proctorhq/sessiond/internal/store"
)

type testServer struct {
	srv *httptest.Server
	db  store.DataStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)

	logger := zerolog.Nop()
	recorder := audit.NewRecorder(db, realtime.Noop{}, logger)
	eng := engine.New(db, recorder, logger)
	router := api.NewRouter(logger, db, eng, recorder, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, db: db}
}

// do issues a JSON request with the actor header and decodes the response.
func (ts *testServer) do(t *testing.T, method, path string, actor uuid.UUID, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != uuid.Nil {
		req.Header.Set("X-Actor-ID", actor.String())
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response for %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) createUser(t *testing.T, role models.Role) *models.User {
	t.Helper()
	user, err := ts.db.CreateUser(context.Background(), "test "+string(role), role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (ts *testServer) createSession(t *testing.T, admin uuid.UUID) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	var sess models.Session
	status := ts.do(t, "POST", "/sessions", admin, map[string]interface{}{
		"name":                  "ward rotation",
		"scheduled_start":       now.Add(5 * time.Minute),
		"scheduled_end":         now.Add(3 * time.Hour),
		"reporting_start":       now.Add(-time.Hour),
		"reporting_end":         now.Add(2 * time.Hour),
		"max_students_per_room": 2,
		"number_of_rooms":       1,
	}, &sess)
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d", status)
	}
	return sess.ID
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]interface{}
	if status := ts.do(t, "GET", "/health", uuid.Nil, nil, &health); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if health["status"] != "healthy" {
		t.Errorf("health body = %v", health)
	}
}

func TestCreateUserValidation(t *testing.T) {
	ts := newTestServer(t)

	var user models.User
	status := ts.do(t, "POST", "/users", uuid.Nil, map[string]string{
		"name": "jordan", "role": "moderator",
	}, &user)
	if status != http.StatusCreated {
		t.Fatalf("create user status = %d", status)
	}
	if user.Role != models.RoleModerator {
		t.Errorf("role = %s", user.Role)
	}

	status = ts.do(t, "POST", "/users", uuid.Nil, map[string]string{
		"name": "eve", "role": "system",
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("reserved role status = %d, want 400", status)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, models.RoleAdmin)
	student := ts.createUser(t, models.RoleStudent)
	sessionID := ts.createSession(t, admin.ID)

	// Start requires the actor header.
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", sessionID), uuid.Nil, nil, nil); status != http.StatusBadRequest {
		t.Errorf("start without actor = %d, want 400", status)
	}

	// Students cannot start sessions.
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", sessionID), student.ID, nil, nil); status != http.StatusForbidden {
		t.Errorf("student start = %d, want 403", status)
	}

	var inst models.SessionInstance
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", sessionID), admin.ID, nil, &inst); status != http.StatusCreated {
		t.Fatalf("start = %d, want 201", status)
	}

	// Double start conflicts.
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", sessionID), admin.ID, nil, nil); status != http.StatusConflict {
		t.Errorf("double start = %d, want 409", status)
	}

	var p models.Participant
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/join", sessionID), student.ID, nil, &p); status != http.StatusOK {
		t.Fatalf("join = %d, want 200", status)
	}
	if p.Status != models.ParticipantInRoom {
		t.Errorf("participant status = %s", p.Status)
	}

	var eventsResp struct {
		Events []models.Envelope `json:"events"`
	}
	if status := ts.do(t, "GET", fmt.Sprintf("/instances/%s/events", inst.ID), uuid.Nil, nil, &eventsResp); status != http.StatusOK {
		t.Fatalf("list events = %d, want 200", status)
	}
	// SESSION_STARTED, ROOM_CREATED, USER_JOINED.
	if len(eventsResp.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(eventsResp.Events))
	}
	if eventsResp.Events[0].Type != models.EventSessionStarted {
		t.Errorf("first event = %s, want SESSION_STARTED", eventsResp.Events[0].Type)
	}

	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/end", sessionID), admin.ID, nil, nil); status != http.StatusOK {
		t.Errorf("end = %d, want 200", status)
	}
}

func TestFlagWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, models.RoleAdmin)
	assessor := ts.createUser(t, models.RoleAssessor)
	mod := ts.createUser(t, models.RoleModerator)
	student := ts.createUser(t, models.RoleStudent)
	sessionID := ts.createSession(t, admin.ID)

	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", sessionID), admin.ID, nil, nil); status != http.StatusCreated {
		t.Fatalf("start failed: %d", status)
	}
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/join", sessionID), student.ID, nil, nil); status != http.StatusOK {
		t.Fatalf("join failed: %d", status)
	}

	var flag models.Flag
	status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/flags", sessionID), assessor.ID, map[string]interface{}{
		"student_id": student.ID,
		"reason":     "unauthorized materials",
	}, &flag)
	if status != http.StatusCreated {
		t.Fatalf("flag = %d, want 201", status)
	}

	status = ts.do(t, "POST", fmt.Sprintf("/sessions/%s/flags/%s/accept", sessionID, flag.ID), mod.ID, map[string]string{
		"resolution": "confirmed",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("accept = %d, want 200", status)
	}

	// The kicked student's rejoin attempt maps to 422.
	if status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/join", sessionID), student.ID, nil, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("kicked rejoin = %d, want 422", status)
	}

	// Accepting the same flag twice maps to 422 as well.
	status = ts.do(t, "POST", fmt.Sprintf("/sessions/%s/flags/%s/accept", sessionID, flag.ID), mod.ID, map[string]string{
		"resolution": "again",
	}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("double accept = %d, want 422", status)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, models.RoleAdmin)

	status := ts.do(t, "POST", fmt.Sprintf("/sessions/%s/start", uuid.New()), admin.ID, nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown session start = %d, want 404", status)
	}
}
