// Package autologin turns a token pushed to the device record into a login outcome.
package autologin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"arenakiosk/internal/models"
	"arenakiosk/internal/token"
)

// UserFinder resolves user records across the identity collections.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Result is a successful auto-login.
type Result struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	DeviceID string `json:"device_id"`
	Token    string `json:"-"`
}

// SuccessFunc receives a resolved login.
type SuccessFunc func(ctx context.Context, r Result)

// FailureFunc receives the reason a pushed token was not accepted.
type FailureFunc func(ctx context.Context, deviceID string, err error)

// Watcher inspects device versions for new tokens. It never writes to the store.
type Watcher struct {
	deviceID  string
	users     UserFinder
	onSuccess SuccessFunc
	onFailure FailureFunc
	logger    *zap.Logger
	now       func() time.Time

	lastToken string
}

// NewWatcher builds a watcher for deviceID. onFailure may be nil.
func NewWatcher(deviceID string, users UserFinder, onSuccess SuccessFunc, onFailure FailureFunc, logger *zap.Logger) *Watcher {
	return &Watcher{
		deviceID:  deviceID,
		users:     users,
		onSuccess: onSuccess,
		onFailure: onFailure,
		logger:    logger,
		now:       time.Now,
	}
}

// Observe handles one device version. Register it as a devicefeed listener.
func (w *Watcher) Observe(ctx context.Context, d models.Device) {
	if d.ID != w.deviceID {
		return
	}
	raw := strings.TrimSpace(d.Token)
	if raw == w.lastToken {
		return
	}
	w.lastToken = raw
	if raw == "" {
		return
	}

	result, err := w.resolve(ctx, raw)
	if err != nil {
		w.logger.Warn("pushed device token rejected", zap.String("device_id", w.deviceID), zap.Error(err))
		if w.onFailure != nil {
			w.onFailure(ctx, w.deviceID, err)
		}
		return
	}
	w.logger.Info("auto-login resolved",
		zap.String("device_id", w.deviceID),
		zap.String("user_id", result.UserID),
	)
	w.onSuccess(ctx, result)
}

func (w *Watcher) resolve(ctx context.Context, raw string) (Result, error) {
	if err := token.Validate(raw, w.now()); err != nil {
		return Result{}, err
	}
	userID, err := token.UserID(raw)
	if err != nil {
		return Result{}, err
	}
	user, err := w.users.FindByID(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("autologin: resolve user %s: %w", userID, err)
	}
	return Result{
		UserID:   user.ID,
		Username: user.DisplayName(),
		DeviceID: w.deviceID,
		Token:    raw,
	}, nil
}
