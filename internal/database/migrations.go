package database

import (
	"errors"
	"time"

	"github.com/tallyworks/syncd/internal/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSyncStatus = "2026-07-21_backfill_sync_status"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSyncStatus, apply: backfillSyncStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSyncStatus repairs rows imported before the sync columns existed:
// anything without a status becomes pending so the next delta pull picks
// it up.
func backfillSyncStatus(db *gorm.DB) error {
	for _, table := range registry.Default().Names() {
		err := db.Table(table).
			Where("sync_status IS NULL OR sync_status = ''").
			Update("sync_status", "pending").Error
		if err != nil {
			return err
		}
	}
	return nil
}
