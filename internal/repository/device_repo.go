package repository

import (
	"context"

	"arenakiosk/internal/models"
)

// DeviceRepository reads and releases terminal records.
type DeviceRepository struct {
	records Records
}

// NewDeviceRepository returns repository.
func NewDeviceRepository(records Records) *DeviceRepository {
	return &DeviceRepository{records: records}
}

// Get loads a device by id.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := r.records.Get(ctx, CollectionDevices, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Release marks the device available and clears the pushed token and client record.
func (r *DeviceRepository) Release(ctx context.Context, id string) error {
	return r.records.Update(ctx, CollectionDevices, id, map[string]interface{}{
		"status":        models.DeviceStatusAvailable,
		"token":         "",
		"client_record": "",
	}, nil)
}

// MarkInUse flags the device as taken by a running session.
func (r *DeviceRepository) MarkInUse(ctx context.Context, id string) error {
	return r.records.Update(ctx, CollectionDevices, id, map[string]interface{}{
		"status": models.DeviceStatusInUse,
	}, nil)
}

// ClearScreenshotRequest resets the remote screenshot flag.
func (r *DeviceRepository) ClearScreenshotRequest(ctx context.Context, id string) error {
	return r.records.Update(ctx, CollectionDevices, id, map[string]interface{}{
		"screenshot_requested": false,
	}, nil)
}
