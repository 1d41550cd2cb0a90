package repository

import (
	"context"
	"errors"

	"arenakiosk/internal/models"
	"arenakiosk/internal/store"
)

// ErrUserNotFound is returned when no identity collection knows the id.
var ErrUserNotFound = errors.New("repository: user not found")

// UserRepository resolves customers across the identity collections, in order.
type UserRepository struct {
	records     Records
	collections []string
}

// NewUserRepository returns repository. Without collections it searches users then customers.
func NewUserRepository(records Records, collections ...string) *UserRepository {
	if len(collections) == 0 {
		collections = []string{CollectionUsers, CollectionCustomers}
	}
	return &UserRepository{records: records, collections: collections}
}

// Collections returns the identity collections in lookup order.
func (r *UserRepository) Collections() []string {
	return append([]string(nil), r.collections...)
}

// FindByID tries each identity collection and returns the first match.
// The last non-404 error is returned when every lookup fails.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var lastErr error = ErrUserNotFound
	for _, collection := range r.collections {
		var u models.User
		err := r.records.Get(ctx, collection, id, &u)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			lastErr = err
		}
	}
	return nil, lastErr
}
