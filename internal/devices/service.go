// Package devices tracks the client terminals known to the sync server:
// registration, liveness and activation state.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDeviceNotFound indicates the (company, device) pair is not registered.
	ErrDeviceNotFound = errors.New("devices: device not found")
	// ErrMissingDeviceID indicates a request without a device identifier.
	ErrMissingDeviceID = errors.New("devices: device id is required")

	errMissingDatabase = errors.New("database handle is required")
)

// RegistrationInput carries the client-supplied device description.
type RegistrationInput struct {
	DeviceID    string
	DisplayName string
	Kind        Kind
	IPAddress   string
}

// ServiceConfig describes the dependencies of the device registry.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the device registry. Writes are whole-record,
// last-writer-wins; there is no per-device versioning.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the device registry service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Register upserts a device record. Registration is idempotent: an existing
// device keeps its original registered_at, merges any non-empty incoming
// fields, is re-activated and has its last_seen_at refreshed.
func (s *Service) Register(ctx context.Context, companyID string, input RegistrationInput, actor string) (Device, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return Device{}, ErrMissingDeviceID
	}

	now := s.clock().UTC()
	// Kinds form a closed set; anything off the wire that is not a known
	// value registers as a plain client.
	kind := input.Kind
	if !kind.valid() {
		kind = KindClient
	}

	var existing Device
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND device_id = ?", companyID, deviceID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Device{
			CompanyID:    companyID,
			DeviceID:     deviceID,
			DisplayName:  strings.TrimSpace(input.DisplayName),
			Kind:         kind,
			IPAddress:    strings.TrimSpace(input.IPAddress),
			RegisteredBy: actor,
			RegisteredAt: now,
			LastSeenAt:   now,
			Active:       true,
		}
		if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
			s.logger.Error("device registration failed",
				zap.String("company_id", companyID),
				zap.String("device_id", deviceID),
				zap.Error(err))
			return Device{}, fmt.Errorf("devices: register: %w", err)
		}
		s.logger.Info("device registered",
			zap.String("company_id", companyID),
			zap.String("device_id", deviceID),
			zap.String("kind", string(kind)))
		return created, nil
	}
	if err != nil {
		return Device{}, fmt.Errorf("devices: register lookup: %w", err)
	}

	if name := strings.TrimSpace(input.DisplayName); name != "" {
		existing.DisplayName = name
	}
	if input.Kind.valid() {
		existing.Kind = input.Kind
	}
	if address := strings.TrimSpace(input.IPAddress); address != "" {
		existing.IPAddress = address
	}
	if actor != "" {
		existing.RegisteredBy = actor
	}
	existing.LastSeenAt = now
	existing.Active = true
	existing.DeactivatedAt = nil

	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		s.logger.Error("device re-registration failed",
			zap.String("company_id", companyID),
			zap.String("device_id", deviceID),
			zap.Error(err))
		return Device{}, fmt.Errorf("devices: register update: %w", err)
	}
	return existing, nil
}

// List returns every device registered for the company, most recently seen
// first.
func (s *Service) List(ctx context.Context, companyID string) ([]Device, error) {
	var registered []Device
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("last_seen_at DESC").
		Find(&registered).Error
	if err != nil {
		return nil, fmt.Errorf("devices: list: %w", err)
	}
	return registered, nil
}

// Deactivate soft-disables a device. The record is kept for audit.
func (s *Service) Deactivate(ctx context.Context, companyID, deviceID string) (Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Device{}, ErrMissingDeviceID
	}

	var existing Device
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND device_id = ?", companyID, deviceID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("devices: deactivate lookup: %w", err)
	}

	now := s.clock().UTC()
	existing.Active = false
	existing.DeactivatedAt = &now
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return Device{}, fmt.Errorf("devices: deactivate: %w", err)
	}
	s.logger.Info("device deactivated",
		zap.String("company_id", companyID),
		zap.String("device_id", deviceID))
	return existing, nil
}

// Touch refreshes a device's last_seen_at. Unregistered devices are a
// silent no-op so heartbeats and pulls never fail on liveness bookkeeping.
func (s *Service) Touch(ctx context.Context, companyID, deviceID string) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return
	}
	err := s.db.WithContext(ctx).Model(&Device{}).
		Where("company_id = ? AND device_id = ?", companyID, deviceID).
		Update("last_seen_at", s.clock().UTC()).Error
	if err != nil {
		s.logger.Warn("device touch failed",
			zap.String("company_id", companyID),
			zap.String("device_id", deviceID),
			zap.Error(err))
	}
}
