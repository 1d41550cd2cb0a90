// Package localstate persists the few keys the terminal must remember across restarts.
package localstate

import (
	"context"
	"errors"
)

// Keys used by the kiosk.
const (
	KeyDeviceID      = "device_id"
	KeyLoginIdentity = "login_identity"
	KeyLoginSource   = "login_source"
	KeySessionFlags  = "session_flags"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("localstate: key not found")

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
