// Package identity holds who is logged in on the terminal. A single Context is created at
// startup, passed to every component that needs it and closed on shutdown.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenakiosk/internal/localstate"
)

// Source tells how the current login happened.
type Source string

const (
	// SourceDirect is a login typed at the terminal.
	SourceDirect Source = "direct"
	// SourceClientApp is a login pushed through the device token by the front-desk app.
	SourceClientApp Source = "client_app"
)

// ErrNoUser is returned by Login for an identity without user id.
var ErrNoUser = errors.New("identity: user id required")

// Identity is the logged-in customer.
type Identity struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Token      string    `json:"token,omitempty"`
	Source     Source    `json:"source"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// SessionFlags are the locally remembered session markers cleared on logout.
type SessionFlags struct {
	SessionID string `json:"session_id"`
	Active    bool   `json:"active"`
}

// ChangeFunc observes login (true) and logout (false).
type ChangeFunc func(id Identity, loggedIn bool)

// Context is the explicitly passed auth/session context of the terminal.
type Context struct {
	mu        sync.RWMutex
	store     localstate.Store
	deviceID  string
	current   *Identity
	flags     SessionFlags
	listeners []ChangeFunc
	logger    *zap.Logger
}

// Open restores the persisted identity for deviceID. A persisted identity of another device
// is discarded.
func Open(ctx context.Context, store localstate.Store, deviceID string, logger *zap.Logger) (*Context, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		stored, err := store.Get(ctx, localstate.KeyDeviceID)
		if err != nil {
			return nil, fmt.Errorf("identity: device id not configured and not persisted: %w", err)
		}
		deviceID = stored
	}

	c := &Context{store: store, deviceID: deviceID, logger: logger}

	previous, err := store.Get(ctx, localstate.KeyDeviceID)
	switch {
	case errors.Is(err, localstate.ErrNotFound):
	case err != nil:
		return nil, err
	case previous != deviceID:
		logger.Info("device id changed, discarding persisted login",
			zap.String("previous", previous),
			zap.String("device_id", deviceID),
		)
		if err := store.Delete(ctx, localstate.KeyLoginIdentity, localstate.KeyLoginSource, localstate.KeySessionFlags); err != nil {
			return nil, err
		}
	}
	if err := store.Set(ctx, localstate.KeyDeviceID, deviceID); err != nil {
		return nil, err
	}

	if raw, err := store.Get(ctx, localstate.KeyLoginIdentity); err == nil {
		var id Identity
		if err := json.Unmarshal([]byte(raw), &id); err != nil || id.UserID == "" {
			logger.Warn("discarding unreadable persisted login", zap.Error(err))
		} else {
			c.current = &id
		}
	}
	if raw, err := store.Get(ctx, localstate.KeySessionFlags); err == nil {
		_ = json.Unmarshal([]byte(raw), &c.flags)
	}
	return c, nil
}

// DeviceID returns the terminal's device id.
func (c *Context) DeviceID() string {
	return c.deviceID
}

// Current returns the logged-in identity.
func (c *Context) Current() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Identity{}, false
	}
	return *c.current, true
}

// UserID returns the logged-in user id or "".
func (c *Context) UserID() string {
	id, _ := c.Current()
	return id.UserID
}

// Token returns the bearer token of the logged-in user or "".
func (c *Context) Token() string {
	id, _ := c.Current()
	return id.Token
}

// Source returns how the current user logged in; direct when nobody is logged in.
func (c *Context) Source() Source {
	id, ok := c.Current()
	if !ok || id.Source == "" {
		return SourceDirect
	}
	return id.Source
}

// Flags returns the persisted session markers.
func (c *Context) Flags() SessionFlags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags
}

// OnChange registers fn for login and logout notifications.
func (c *Context) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Login replaces the current identity and persists it.
func (c *Context) Login(ctx context.Context, id Identity) error {
	if strings.TrimSpace(id.UserID) == "" {
		return ErrNoUser
	}
	if id.Source == "" {
		id.Source = SourceDirect
	}
	if id.LoggedInAt.IsZero() {
		id.LoggedInAt = time.Now()
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, localstate.KeyLoginIdentity, string(data)); err != nil {
		return err
	}
	if err := c.store.Set(ctx, localstate.KeyLoginSource, string(id.Source)); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = &id
	listeners := append([]ChangeFunc(nil), c.listeners...)
	c.mu.Unlock()

	c.logger.Info("user logged in",
		zap.String("user_id", id.UserID),
		zap.String("username", id.Username),
		zap.String("source", string(id.Source)),
	)
	for _, fn := range listeners {
		fn(id, true)
	}
	return nil
}

// Logout clears the identity and the session flags. Logging out twice is a no-op.
func (c *Context) Logout(ctx context.Context) error {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.flags = SessionFlags{}
	listeners := append([]ChangeFunc(nil), c.listeners...)
	c.mu.Unlock()

	if err := c.store.Delete(ctx, localstate.KeyLoginIdentity, localstate.KeyLoginSource, localstate.KeySessionFlags); err != nil {
		return err
	}
	if previous == nil {
		return nil
	}
	c.logger.Info("user logged out", zap.String("user_id", previous.UserID))
	for _, fn := range listeners {
		fn(*previous, false)
	}
	return nil
}

// SetFlags persists the session markers.
func (c *Context) SetFlags(ctx context.Context, flags SessionFlags) error {
	c.mu.Lock()
	if c.flags == flags {
		c.mu.Unlock()
		return nil
	}
	c.flags = flags
	c.mu.Unlock()

	data, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, localstate.KeySessionFlags, string(data))
}

// Close drops listeners. The store is owned by the caller.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = nil
}
