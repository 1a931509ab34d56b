package syncer

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Audit operations recorded for applied writes.
const (
	auditOpInsert  = "insert"
	auditOpUpdate  = "update"
	auditOpResolve = "resolve"
)

// SyncChange is an append-only audit record for every write the engine
// applied on behalf of a device. Rejected (conflicted) writes are not
// recorded; conflicts are returned to the caller instead.
type SyncChange struct {
	ChangeID         string `gorm:"column:change_id;primaryKey;size:190;not null"`
	CompanyID        string `gorm:"column:company_id;size:190;not null;index:idx_sync_changes_company_time,priority:1"`
	Table            string `gorm:"column:table_name;size:190;not null"`
	RecordID         string `gorm:"column:record_id;size:190;not null"`
	DeviceID         string `gorm:"column:device_id;size:190;not null;default:''"`
	Operation        string `gorm:"column:op;size:16;not null"`
	NewVersion       int64  `gorm:"column:new_version;not null;default:0"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null;index:idx_sync_changes_company_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (SyncChange) TableName() string {
	return "sync_changes"
}

// recordChange appends an audit row inside the caller's transaction. Audit
// failures abort the row's transaction so the trail never misses an
// applied write.
func (s *Service) recordChange(tx *gorm.DB, companyID, table, recordID, deviceID, op string, newVersion int64) error {
	changeID, err := s.ids.NewID()
	if err != nil {
		return err
	}
	change := SyncChange{
		ChangeID:         changeID,
		CompanyID:        companyID,
		Table:            table,
		RecordID:         recordID,
		DeviceID:         deviceID,
		Operation:        op,
		NewVersion:       newVersion,
		AppliedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := tx.Create(&change).Error; err != nil {
		s.logError(opPush, "audit_insert_failed", err,
			zap.String("table", table),
			zap.String("record_id", recordID))
		return err
	}
	return nil
}
