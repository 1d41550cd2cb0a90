package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arenakiosk/internal/auth"
	"arenakiosk/internal/identity"
	"arenakiosk/internal/kiosk"
	"arenakiosk/internal/models"
	"arenakiosk/internal/session"
)

type fakeSessions struct {
	snap      session.Snapshot
	extendErr error
	refreshed int
}

func (f *fakeSessions) Snapshot() session.Snapshot { return f.snap }

func (f *fakeSessions) Extend(context.Context) (*models.Session, error) {
	if f.extendErr != nil {
		return nil, f.extendErr
	}
	return &models.Session{ID: "s1", Status: models.SessionStatusExtended}, nil
}

func (f *fakeSessions) Refresh() { f.refreshed++ }

type fakeAuth struct {
	err     error
	logouts int
}

func (f *fakeAuth) Login(_ context.Context, username, _ string) (identity.Identity, error) {
	if f.err != nil {
		return identity.Identity{}, f.err
	}
	return identity.Identity{UserID: "u1", Username: username, Source: identity.SourceDirect}, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logouts++
	return nil
}

type fakeLock struct {
	unlockErr error
	requests  []string
}

func (f *fakeLock) AdminUnlock(context.Context, string) error { return f.unlockErr }

func (f *fakeLock) Request(reason string, _ bool) { f.requests = append(f.requests, reason) }

func (f *fakeLock) Locked() bool { return true }

type fakeWho struct{ id *identity.Identity }

func (f fakeWho) DeviceID() string { return "dev-1" }

func (f fakeWho) Current() (identity.Identity, bool) {
	if f.id == nil {
		return identity.Identity{}, false
	}
	return *f.id, true
}

func newHandler(s *fakeSessions, a *fakeAuth, l *fakeLock, who fakeWho) *KioskHandler {
	return NewKioskHandler(s, a, l, who, zap.NewNop())
}

func TestHandleStatus(t *testing.T) {
	s := &fakeSessions{snap: session.Snapshot{
		Active:    true,
		Phase:     session.PhaseOpenValid,
		Session:   &models.Session{ID: "s1"},
		Remaining: 90 * time.Second,
	}}
	h := newHandler(s, &fakeAuth{}, &fakeLock{}, fakeWho{id: &identity.Identity{UserID: "u1", Username: "neo"}})

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dev-1", body["device_id"])
	assert.Equal(t, true, body["logged_in"])
	assert.Equal(t, float64(90), body["remaining_seconds"])
	assert.Equal(t, "neo", body["user"].(map[string]interface{})["username"])
	assert.Equal(t, "open_valid", body["session"].(map[string]interface{})["phase"])
}

func TestHandleLogin(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"ok", `{"username":"neo","password":"pw"}`, nil, http.StatusOK},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"missing", `{}`, auth.ErrMissingCredentials, http.StatusBadRequest},
		{"invalid", `{"username":"neo","password":"x"}`, auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"store down", `{"username":"neo","password":"x"}`, assert.AnError, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSessions{}
			h := newHandler(s, &fakeAuth{err: tc.err}, &fakeLock{}, fakeWho{})
			rec := httptest.NewRecorder()
			h.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, 1, s.refreshed)
				assert.Contains(t, rec.Body.String(), `"user_id":"u1"`)
			} else {
				assert.Zero(t, s.refreshed)
			}
		})
	}
}

func TestHandleLogoutLocks(t *testing.T) {
	a, l := &fakeAuth{}, &fakeLock{}
	h := newHandler(&fakeSessions{}, a, l, fakeWho{})

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, a.logouts)
	assert.Equal(t, []string{"logout"}, l.requests)
}

func TestHandleSessionExtend(t *testing.T) {
	h := newHandler(&fakeSessions{}, &fakeAuth{}, &fakeLock{}, fakeWho{})
	rec := httptest.NewRecorder()
	h.HandleSessionExtend(rec, httptest.NewRequest(http.MethodPost, "/session/extend", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Extended"`)

	h = newHandler(&fakeSessions{extendErr: session.ErrNoSession}, &fakeAuth{}, &fakeLock{}, fakeWho{})
	rec = httptest.NewRecorder()
	h.HandleSessionExtend(rec, httptest.NewRequest(http.MethodPost, "/session/extend", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleKioskUnlock(t *testing.T) {
	for err, status := range map[error]int{
		nil:                 http.StatusOK,
		kiosk.ErrBadPIN:     http.StatusForbidden,
		kiosk.ErrNoAdminPIN: http.StatusForbidden,
		assert.AnError:      http.StatusInternalServerError,
	} {
		h := newHandler(&fakeSessions{}, &fakeAuth{}, &fakeLock{unlockErr: err}, fakeWho{})
		rec := httptest.NewRecorder()
		h.HandleKioskUnlock(rec, httptest.NewRequest(http.MethodPost, "/kiosk/unlock", strings.NewReader(`{"pin":"1234"}`)))
		assert.Equal(t, status, rec.Code, "%v", err)
	}
}
