package repository

import (
	"context"

	"arenakiosk/internal/store"
)

// ScreenshotRepository uploads captured terminal images.
type ScreenshotRepository struct {
	records Records
}

// NewScreenshotRepository returns repository.
func NewScreenshotRepository(records Records) *ScreenshotRepository {
	return &ScreenshotRepository{records: records}
}

// Upload stores one image for the device together with descriptive fields.
func (r *ScreenshotRepository) Upload(ctx context.Context, deviceID, fileName string, image []byte, fields map[string]string) error {
	form := map[string]string{"device": deviceID}
	for k, v := range fields {
		form[k] = v
	}
	return r.records.CreateWithFile(ctx, CollectionScreenshots, form, store.File{
		Field:       "image",
		Name:        fileName,
		ContentType: "image/png",
		Data:        image,
	}, nil)
}
