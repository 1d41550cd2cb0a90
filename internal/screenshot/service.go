// Package screenshot serves remote screenshot requests flagged on the device record.
package screenshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"arenakiosk/internal/models"
	"arenakiosk/internal/osctl"
)

// MessageFailed is shown when a requested screenshot could not be delivered.
const MessageFailed = "Screenshot request failed."

// Capturer is the OS side of a screenshot.
type Capturer interface {
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	OSInfo(ctx context.Context) (osctl.Info, error)
	ShowNotification(ctx context.Context, text string) error
}

// Uploader stores captured images.
type Uploader interface {
	Upload(ctx context.Context, deviceID, fileName string, image []byte, fields map[string]string) error
}

// FlagClearer resets the request flag on the device.
type FlagClearer interface {
	ClearScreenshotRequest(ctx context.Context, deviceID string) error
}

// Service captures and uploads one screenshot per request, at most once per cooldown.
type Service struct {
	deviceID string
	os       Capturer
	uploads  Uploader
	devices  FlagClearer
	limiter  *rate.Limiter
	logger   *zap.Logger
	now      func() time.Time
	newName  func() string
}

// NewService builds a service. A zero cooldown disables throttling.
func NewService(deviceID string, os Capturer, uploads Uploader, devices FlagClearer, cooldown time.Duration, logger *zap.Logger) *Service {
	limit := rate.Inf
	if cooldown > 0 {
		limit = rate.Every(cooldown)
	}
	return &Service{
		deviceID: deviceID,
		os:       os,
		uploads:  uploads,
		devices:  devices,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		now:      time.Now,
		newName:  func() string { return uuid.NewString() + ".png" },
	}
}

// Observe handles one device version. Register it as a devicefeed listener.
func (s *Service) Observe(ctx context.Context, d models.Device) {
	if d.ID != s.deviceID || !d.ScreenshotRequested {
		return
	}
	defer s.clearFlag(ctx)

	if !s.limiter.Allow() {
		s.logger.Info("screenshot request within cooldown, skipped", zap.String("device_id", s.deviceID))
		return
	}
	if err := s.take(ctx); err != nil {
		s.logger.Warn("screenshot failed", zap.String("device_id", s.deviceID), zap.Error(err))
		if nerr := s.os.ShowNotification(ctx, MessageFailed); nerr != nil {
			s.logger.Warn("failed to show notification", zap.Error(nerr))
		}
	}
}

func (s *Service) take(ctx context.Context) error {
	image, err := s.os.CaptureScreenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot: capture: %w", err)
	}
	fields := map[string]string{"taken_at": s.now().UTC().Format(time.RFC3339)}
	if info, err := s.os.OSInfo(ctx); err == nil {
		fields["os_name"] = info.Name
		fields["os_version"] = info.Version
	} else {
		s.logger.Warn("os info unavailable", zap.Error(err))
	}

	name := s.newName()
	if err := s.uploads.Upload(ctx, s.deviceID, name, image, fields); err != nil {
		return fmt.Errorf("screenshot: upload: %w", err)
	}
	s.logger.Info("screenshot uploaded", zap.String("device_id", s.deviceID), zap.String("file", name), zap.Int("bytes", len(image)))
	return nil
}

func (s *Service) clearFlag(ctx context.Context) {
	if err := s.devices.ClearScreenshotRequest(ctx, s.deviceID); err != nil {
		s.logger.Warn("failed to clear screenshot request", zap.String("device_id", s.deviceID), zap.Error(err))
	}
}
