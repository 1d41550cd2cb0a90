package repository

import (
	"context"

	"arenakiosk/internal/models"
	"arenakiosk/internal/store"
)

// GroupRepository reads rate groups.
type GroupRepository struct {
	records Records
}

// NewGroupRepository returns repository.
func NewGroupRepository(records Records) *GroupRepository {
	return &GroupRepository{records: records}
}

// Get loads a rate group by id.
func (r *GroupRepository) Get(ctx context.Context, id string) (*models.RateGroup, error) {
	var g models.RateGroup
	if err := r.records.Get(ctx, CollectionGroups, id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// HappyHourRepository reads discount windows.
type HappyHourRepository struct {
	records Records
}

// NewHappyHourRepository returns repository.
func NewHappyHourRepository(records Records) *HappyHourRepository {
	return &HappyHourRepository{records: records}
}

// ListActive returns the active windows of a group for a weekday, ordered by start time.
func (r *HappyHourRepository) ListActive(ctx context.Context, groupID, weekday string) ([]models.DiscountWindow, error) {
	var windows []models.DiscountWindow
	err := r.records.List(ctx, CollectionHappyHours, store.ListQuery{
		Filter: store.And(
			store.Eq("group", groupID),
			store.Eq("status", models.DiscountWindowActive),
			store.Eq("day", weekday),
		).String(),
		Sort:    "start_time,id",
		PerPage: 50,
	}, &windows)
	if err != nil {
		return nil, err
	}
	return windows, nil
}
