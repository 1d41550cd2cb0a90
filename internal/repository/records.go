package repository

import (
	"context"

	"arenakiosk/internal/store"
)

// Collection names in the record store.
const (
	CollectionDevices     = "devices"
	CollectionSessions    = "sessions"
	CollectionSessionLogs = "session_logs"
	CollectionGroups      = "groups"
	CollectionHappyHours  = "happy_hours"
	CollectionUsers       = "users"
	CollectionCustomers   = "customers"
	CollectionScreenshots = "screenshots"
)

// Records is the subset of the store client used by repositories.
type Records interface {
	List(ctx context.Context, collection string, q store.ListQuery, out interface{}) error
	First(ctx context.Context, collection string, q store.ListQuery, out interface{}) error
	Get(ctx context.Context, collection, id string, out interface{}) error
	Create(ctx context.Context, collection string, body, out interface{}) error
	Update(ctx context.Context, collection, id string, body, out interface{}) error
	CreateWithFile(ctx context.Context, collection string, fields map[string]string, file store.File, out interface{}) error
}
