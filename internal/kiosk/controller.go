// Package kiosk locks the terminal whenever no session is active.
package kiosk

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"arenakiosk/internal/osctl"
)

var (
	// ErrNoAdminPIN is returned by AdminUnlock when no PIN hash is configured.
	ErrNoAdminPIN = errors.New("kiosk: admin unlock disabled")
	// ErrBadPIN is returned by AdminUnlock for a wrong PIN.
	ErrBadPIN = errors.New("kiosk: wrong pin")
)

// Window switches the terminal window between kiosk and normal mode.
type Window interface {
	SetWindowMode(ctx context.Context, kiosk bool, geometry osctl.Geometry) error
}

// Geometries are the window rectangles for each mode.
type Geometries struct {
	Kiosk  osctl.Geometry
	Normal osctl.Geometry
}

// LockRequest asks for lockdown. Force re-applies kiosk mode even when already locked or
// while a session is active.
type LockRequest struct {
	Reason string
	Force  bool
}

// Controller owns the terminal lock state.
type Controller struct {
	window     Window
	geometries Geometries
	pinHash    []byte
	logger     *zap.Logger
	requests   chan LockRequest

	mu            sync.Mutex
	applied       bool
	locked        bool
	sessionActive bool
	adminUnlocked bool
}

// NewController builds a controller. pinHash is a bcrypt hash; empty disables admin unlock.
func NewController(window Window, geometries Geometries, pinHash string, queueSize int, logger *zap.Logger) *Controller {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Controller{
		window:     window,
		geometries: geometries,
		pinHash:    []byte(pinHash),
		logger:     logger,
		requests:   make(chan LockRequest, queueSize),
	}
}

// Apply maps session activity to the lock state. Repeated calls with the same value do
// not touch the window.
func (c *Controller) Apply(ctx context.Context, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionActive != active {
		c.adminUnlocked = false
	}
	c.sessionActive = active
	return c.setLocked(ctx, !active, false)
}

// Request queues a lock request without blocking. A full queue drops the request.
func (c *Controller) Request(reason string, force bool) {
	select {
	case c.requests <- LockRequest{Reason: reason, Force: force}:
	default:
		c.logger.Warn("lock request queue full, dropping request", zap.String("reason", reason))
	}
}

// Requests exposes the queue for producers that prefer a channel.
func (c *Controller) Requests() chan<- LockRequest {
	return c.requests
}

// Run serves lock requests until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.requests:
			c.handle(ctx, req)
		}
	}
}

func (c *Controller) handle(ctx context.Context, req LockRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionActive && !req.Force {
		c.logger.Info("ignoring lock request during active session", zap.String("reason", req.Reason))
		return
	}
	c.adminUnlocked = false
	c.logger.Info("lock requested", zap.String("reason", req.Reason), zap.Bool("force", req.Force))
	if err := c.setLocked(ctx, true, req.Force); err != nil {
		c.logger.Warn("failed to lock terminal", zap.Error(err))
	}
}

// AdminUnlock unlocks the terminal for staff until the next lock request or activity change.
func (c *Controller) AdminUnlock(ctx context.Context, pin string) error {
	if len(c.pinHash) == 0 {
		return ErrNoAdminPIN
	}
	if err := bcrypt.CompareHashAndPassword(c.pinHash, []byte(pin)); err != nil {
		c.logger.Warn("admin unlock rejected")
		return ErrBadPIN
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminUnlocked = true
	c.logger.Info("admin unlock")
	return c.setLocked(ctx, false, false)
}

// Locked reports the last applied state. Before the first call it reports true.
func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.applied || c.locked
}

// setLocked must be called with mu held.
func (c *Controller) setLocked(ctx context.Context, locked, force bool) error {
	if locked && c.adminUnlocked {
		locked = false
	}
	if c.applied && c.locked == locked && !force {
		return nil
	}
	geometry := c.geometries.Normal
	if locked {
		geometry = c.geometries.Kiosk
	}
	if err := c.window.SetWindowMode(ctx, locked, geometry); err != nil {
		return err
	}
	c.applied = true
	c.locked = locked
	c.logger.Info("kiosk mode changed", zap.Bool("locked", locked))
	return nil
}
