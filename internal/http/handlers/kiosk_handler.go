package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"arenakiosk/internal/auth"
	"arenakiosk/internal/identity"
	"arenakiosk/internal/kiosk"
	"arenakiosk/internal/models"
	"arenakiosk/internal/session"
)

// SessionControl is the orchestrator surface used by the api.
type SessionControl interface {
	Snapshot() session.Snapshot
	Extend(ctx context.Context) (*models.Session, error)
	Refresh()
}

// Authenticator performs direct logins.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (identity.Identity, error)
	Logout(ctx context.Context) error
}

// Lock is the kiosk controller surface used by the api.
type Lock interface {
	AdminUnlock(ctx context.Context, pin string) error
	Request(reason string, force bool)
	Locked() bool
}

// Who reports the current login.
type Who interface {
	DeviceID() string
	Current() (identity.Identity, bool)
}

// KioskHandler serves the local control api used by the terminal UI.
type KioskHandler struct {
	sessions SessionControl
	auth     Authenticator
	lock     Lock
	who      Who
	logger   *zap.Logger
}

// NewKioskHandler builds handler set.
func NewKioskHandler(sessions SessionControl, auth Authenticator, lock Lock, who Who, logger *zap.Logger) *KioskHandler {
	return &KioskHandler{
		sessions: sessions,
		auth:     auth,
		lock:     lock,
		who:      who,
		logger:   logger,
	}
}

type userView struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Source   identity.Source `json:"source"`
}

type statusResponse struct {
	DeviceID string           `json:"device_id"`
	LoggedIn bool             `json:"logged_in"`
	User     *userView        `json:"user,omitempty"`
	Locked   bool             `json:"locked"`
	Session  session.Snapshot `json:"session"`
	// RemainingSeconds is the whole seconds left of an open session.
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// HandleStatus handles GET /status.
func (h *KioskHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.sessions.Snapshot()
	resp := statusResponse{
		DeviceID: h.who.DeviceID(),
		Locked:   h.lock.Locked(),
		Session:  snap,
	}
	if id, ok := h.who.Current(); ok {
		resp.LoggedIn = true
		resp.User = &userView{UserID: id.UserID, Username: id.Username, Source: id.Source}
	}
	if snap.Remaining > 0 {
		resp.RemainingSeconds = int64(snap.Remaining.Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /login.
func (h *KioskHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "login unavailable")
		return
	}
	h.sessions.Refresh()
	writeJSON(w, http.StatusOK, userView{UserID: id.UserID, Username: id.Username, Source: id.Source})
}

// HandleLogout handles POST /logout.
func (h *KioskHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.lock.Request("logout", true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSessionExtend handles POST /session/extend.
func (h *KioskHandler) HandleSessionExtend(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Extend(r.Context())
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusConflict, "no open session")
		return
	case err != nil:
		h.logger.Error("extend session failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to extend session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": s})
}

type unlockRequest struct {
	PIN string `json:"pin"`
}

// HandleKioskUnlock handles POST /kiosk/unlock.
func (h *KioskHandler) HandleKioskUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.lock.AdminUnlock(r.Context(), req.PIN)
	switch {
	case errors.Is(err, kiosk.ErrNoAdminPIN):
		writeError(w, http.StatusForbidden, "admin unlock disabled")
		return
	case errors.Is(err, kiosk.ErrBadPIN):
		writeError(w, http.StatusForbidden, "wrong pin")
		return
	case err != nil:
		h.logger.Error("admin unlock failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unlock failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}
