package repository

import (
	"context"
	"errors"

	"arenakiosk/internal/models"
	"arenakiosk/internal/store"
)

// SessionRepository handles session records.
type SessionRepository struct {
	records Records
}

// NewSessionRepository returns repository.
func NewSessionRepository(records Records) *SessionRepository {
	return &SessionRepository{records: records}
}

// OpenSessionFilter selects any open session of the device.
func OpenSessionFilter(deviceID string) string {
	return store.And(
		store.Eq("device", deviceID),
		store.In("status", models.OpenSessionStatuses...),
	).String()
}

// FindOpen returns the newest open session of the device, or nil when there is none.
func (r *SessionRepository) FindOpen(ctx context.Context, deviceID string) (*models.Session, error) {
	var s models.Session
	err := r.records.First(ctx, CollectionSessions, store.ListQuery{
		Filter: OpenSessionFilter(deviceID),
		Sort:   "-in_time",
	}, &s)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get loads a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := r.records.Get(ctx, CollectionSessions, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create stores a new session and returns the stored record.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	var created models.Session
	if err := r.records.Create(ctx, CollectionSessions, session, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		created = *session
	}
	return &created, nil
}

// Update patches fields of a session.
func (r *SessionRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.records.Update(ctx, CollectionSessions, id, fields, nil)
}
