// Package syncer implements the synchronization engine: delta pull after a
// watermark, push with per-row optimistic concurrency, manual conflict
// resolution, full bootstrap for new terminals, status aggregation and
// mark-synced acknowledgments. Business tables are treated as opaque row
// sets; the engine touches only the contract columns (id, version,
// updated_at, sync_status, company_id, device_id).
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tallyworks/syncd/internal/devices"
	"github.com/tallyworks/syncd/internal/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Contract column names shared by every syncable relation.
const (
	columnID         = "id"
	columnCompanyID  = "company_id"
	columnVersion    = "version"
	columnUpdatedAt  = "updated_at"
	columnCreatedAt  = "created_at"
	columnSyncStatus = "sync_status"
	columnDeviceID   = "device_id"
)

// Sync status values a row moves through.
const (
	StatusPending  = "pending"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
)

const (
	defaultPageSize = 500
	maxPageSize     = 1000
)

var (
	// ErrMissingDeviceID indicates a pull/push/bootstrap without a device id.
	ErrMissingDeviceID = errors.New("syncer: device id is required")
	// ErrUnknownEntity indicates a targeted operation named a relation
	// outside the catalog or not yet provisioned.
	ErrUnknownEntity = errors.New("syncer: unknown entity")
	// ErrRecordNotFound indicates a targeted operation named a missing row.
	ErrRecordNotFound = errors.New("syncer: record not found")
	// ErrInvalidResolution indicates an unsupported resolution verb or
	// keep_client without a payload.
	ErrInvalidResolution = errors.New("syncer: invalid resolution")

	errMissingDatabase = errors.New("database handle is required")
	errMissingCatalog  = errors.New("syncable catalog is required")

	noOpLogger = zap.NewNop()
)

// ServiceError wraps an engine failure with a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "syncer.service.new"
	opPull       = "syncer.pull"
	opPush       = "syncer.push"
	opResolve    = "syncer.resolve"
	opBootstrap  = "syncer.bootstrap"
	opStatus     = "syncer.status"
	opMarkSynced = "syncer.mark_synced"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Row is one record of a syncable relation in wire form.
type Row = map[string]any

// ActivityFunc is invoked after pushes and resolutions commit, naming the
// relations that changed for the company. Used to hint idle terminals that
// a pull is worthwhile. Must not block.
type ActivityFunc func(companyID string, tables []string)

// ServiceConfig describes the dependencies of the sync engine.
type ServiceConfig struct {
	Database *gorm.DB
	Catalog  *registry.Catalog
	Devices  *devices.Service
	Clock    func() time.Time
	IDs      IDProvider
	Logger   *zap.Logger
	Activity ActivityFunc
}

// Service is the synchronization engine.
type Service struct {
	db        *gorm.DB
	catalog   *registry.Catalog
	devices   *devices.Service
	clock     func() time.Time
	ids       IDProvider
	logger    *zap.Logger
	activity  ActivityFunc
	inventory map[string]struct{}
}

// NewService constructs the engine and captures the schema inventory: the
// set of catalog relations whose backing tables exist. Relations missing
// from the inventory are skipped by every operation instead of probed with
// failing queries.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, newServiceError(opServiceNew, "missing_catalog", errMissingCatalog)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDs
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	inventory := make(map[string]struct{})
	migrator := cfg.Database.Migrator()
	for _, name := range cfg.Catalog.Names() {
		if migrator.HasTable(name) {
			inventory[name] = struct{}{}
		} else {
			logger.Warn("syncable relation not provisioned",
				zap.String("table", name))
		}
	}

	return &Service{
		db:        cfg.Database,
		catalog:   cfg.Catalog,
		devices:   cfg.Devices,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		activity:  cfg.Activity,
		inventory: inventory,
	}, nil
}

func (s *Service) provisioned(name string) bool {
	_, ok := s.inventory[name]
	return ok
}

func (s *Service) touchDevice(ctx context.Context, companyID, deviceID string) {
	if s.devices == nil {
		return
	}
	s.devices.Touch(ctx, companyID, deviceID)
}

func (s *Service) publishActivity(companyID string, tables []string) {
	if s.activity == nil || len(tables) == 0 {
		return
	}
	s.activity(companyID, tables)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("sync engine error", attrs...)
}

func clampPageSize(requested int) int {
	if requested <= 0 {
		return defaultPageSize
	}
	if requested > maxPageSize {
		return maxPageSize
	}
	return requested
}
