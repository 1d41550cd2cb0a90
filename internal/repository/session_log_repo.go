package repository

import (
	"context"

	"arenakiosk/internal/models"
)

// SessionLogRepository appends lifecycle audit entries.
type SessionLogRepository struct {
	records Records
}

// NewSessionLogRepository returns repository.
func NewSessionLogRepository(records Records) *SessionLogRepository {
	return &SessionLogRepository{records: records}
}

// Append writes one entry. Entries are never read back.
func (r *SessionLogRepository) Append(ctx context.Context, entry models.SessionLogEntry) error {
	return r.records.Create(ctx, CollectionSessionLogs, entry, nil)
}
