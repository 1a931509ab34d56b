package syncer

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangeSet is one relation's batch of client-side rows.
type ChangeSet struct {
	TableName string
	Rows      []Row
}

// Conflict reports a rejected row: the client wrote against a version the
// server has already superseded. Conflicts are returned to the caller and
// are not persisted.
type Conflict struct {
	TableName      string `json:"table_name"`
	RecordID       string `json:"record_id"`
	ServerVersion  int64  `json:"server_version"`
	ClientVersion  int64  `json:"client_version"`
	ServerSnapshot Row    `json:"server_snapshot"`
	ClientSnapshot Row    `json:"client_snapshot"`
}

// PushResult aggregates per-row outcomes. Row failures never fail the call.
type PushResult struct {
	Applied   int        `json:"applied"`
	Skipped   int        `json:"skipped"`
	Conflicts []Conflict `json:"conflicts"`
}

type rowOutcome struct {
	applied  bool
	conflict *Conflict
}

// Push applies client-submitted rows with per-row optimistic concurrency.
// Each row is decided by one atomic conditional update inside its own
// transaction: rows-affected is the source of truth for applied versus
// conflicted, so two concurrent pushes for the same row cannot both pass
// the version check. There is deliberately no whole-batch transaction; a
// failure partway leaves earlier rows committed.
//
// A row is applied when its submitted version is greater than or equal to
// the stored version (last-write-wins) or when the id is new. It is
// conflicted when the stored version is higher. Rows without an id, and
// rows aimed at unknown or unprovisioned relations, are counted as skipped.
func (s *Service) Push(ctx context.Context, companyID, deviceID string, changes []ChangeSet) (PushResult, error) {
	if strings.TrimSpace(deviceID) == "" {
		return PushResult{}, ErrMissingDeviceID
	}

	result := PushResult{Conflicts: make([]Conflict, 0)}
	touched := make([]string, 0, len(changes))

	for _, set := range changes {
		descriptor, known := s.catalog.Lookup(set.TableName)
		if !known || !s.provisioned(descriptor.Name) {
			result.Skipped += len(set.Rows)
			continue
		}

		setApplied := false
		for _, row := range set.Rows {
			recordID := rowString(row, columnID)
			if recordID == "" {
				result.Skipped++
				continue
			}

			outcome, err := s.pushRow(ctx, companyID, deviceID, descriptor.Name, descriptor.CompanyScoped, recordID, row)
			if err != nil {
				s.logError(opPush, "row_apply_failed", err,
					zap.String("table", descriptor.Name),
					zap.String("record_id", recordID),
					zap.String("device_id", deviceID))
				result.Skipped++
				continue
			}
			if outcome.applied {
				result.Applied++
				setApplied = true
			} else if outcome.conflict != nil {
				result.Skipped++
				result.Conflicts = append(result.Conflicts, *outcome.conflict)
			}
		}
		if setApplied {
			touched = append(touched, descriptor.Name)
		}
	}

	s.touchDevice(ctx, companyID, deviceID)
	s.publishActivity(companyID, touched)
	return result, nil
}

// pushRow decides one row inside its own transaction.
func (s *Service) pushRow(ctx context.Context, companyID, deviceID, table string, companyScoped bool, recordID string, row Row) (rowOutcome, error) {
	clientVersion := rowVersion(row)
	var outcome rowOutcome

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Table(table).Where(columnID+" = ?", recordID)
		if companyScoped {
			update = update.Where(columnCompanyID+" = ?", companyID)
		}
		update = update.Where(columnVersion+" <= ?", clientVersion).
			Updates(updateAssignments(row, deviceID))
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected > 0 {
			outcome.applied = true
			return s.recordChange(tx, companyID, table, recordID, deviceID, auditOpUpdate, clientVersion)
		}

		// Nothing matched: either the row does not exist yet, or its
		// stored version has moved past the client's.
		lookup := tx.Table(table).Where(columnID+" = ?", recordID)
		if companyScoped {
			lookup = lookup.Where(columnCompanyID+" = ?", companyID)
		}
		var existing []Row
		if err := lookup.Limit(1).Find(&existing).Error; err != nil {
			return err
		}

		if len(existing) == 0 {
			record := insertRecord(row, companyID, deviceID, companyScoped, s.clock().UTC())
			if err := tx.Table(table).Create(record).Error; err != nil {
				return err
			}
			outcome.applied = true
			return s.recordChange(tx, companyID, table, recordID, deviceID, auditOpInsert, clientVersion)
		}

		serverRow := existing[0]
		serverVersion, _ := rowInt64(serverRow, columnVersion)

		// The payload is rejected untouched, but the stored row is flagged
		// so the status aggregator surfaces it until someone resolves it.
		flag := tx.Table(table).Where(columnID+" = ?", recordID)
		if companyScoped {
			flag = flag.Where(columnCompanyID+" = ?", companyID)
		}
		if err := flag.Update(columnSyncStatus, StatusConflict).Error; err != nil {
			return err
		}

		outcome.conflict = &Conflict{
			TableName:      table,
			RecordID:       recordID,
			ServerVersion:  serverVersion,
			ClientVersion:  clientVersion,
			ServerSnapshot: serverRow,
			ClientSnapshot: row,
		}
		return nil
	})
	if txErr != nil {
		return rowOutcome{}, txErr
	}
	return outcome, nil
}
