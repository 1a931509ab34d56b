package syncer

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Resolution is the manual override verb for a conflicted row.
type Resolution string

const (
	// ResolutionKeepServer acknowledges the server value: no data change,
	// the row is simply marked synced again.
	ResolutionKeepServer Resolution = "keep_server"
	// ResolutionKeepClient overwrites the stored row with the supplied
	// client payload and marks it synced.
	ResolutionKeepClient Resolution = "keep_client"
)

// ResolveRequest targets one conflicted record.
type ResolveRequest struct {
	TableName  string
	RecordID   string
	Resolution Resolution
	ClientData Row
}

// ResolveResult reports the row as stored after the override.
type ResolveResult struct {
	TableName  string `json:"table_name"`
	RecordID   string `json:"record_id"`
	Resolution string `json:"resolution"`
	Row        Row    `json:"row"`
}

// Resolve applies a manual conflict override. Unlike pull and push, this
// call names one specific record, so a bad target is an error rather than
// a silent skip: unknown relations and missing records fail loudly.
func (s *Service) Resolve(ctx context.Context, companyID string, req ResolveRequest) (ResolveResult, error) {
	descriptor, known := s.catalog.Lookup(req.TableName)
	if !known || !s.provisioned(descriptor.Name) {
		return ResolveResult{}, fmt.Errorf("%w: %s", ErrUnknownEntity, req.TableName)
	}
	recordID := strings.TrimSpace(req.RecordID)
	if recordID == "" {
		return ResolveResult{}, fmt.Errorf("%w: record id is required", ErrRecordNotFound)
	}

	switch req.Resolution {
	case ResolutionKeepServer:
	case ResolutionKeepClient:
		if len(req.ClientData) == 0 {
			return ResolveResult{}, fmt.Errorf("%w: keep_client requires client_data", ErrInvalidResolution)
		}
	default:
		return ResolveResult{}, fmt.Errorf("%w: %q", ErrInvalidResolution, req.Resolution)
	}

	var resolved Row
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target := func() *gorm.DB {
			scoped := tx.Table(descriptor.Name).Where(columnID+" = ?", recordID)
			if descriptor.CompanyScoped {
				scoped = scoped.Where(columnCompanyID+" = ?", companyID)
			}
			return scoped
		}

		var existing []Row
		if err := target().Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) == 0 {
			return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, descriptor.Name, recordID)
		}

		if req.Resolution == ResolutionKeepServer {
			if err := target().Update(columnSyncStatus, StatusSynced).Error; err != nil {
				return err
			}
		} else {
			if err := target().Updates(updateAssignments(req.ClientData, rowString(existing[0], columnDeviceID))).Error; err != nil {
				return err
			}
		}

		var after []Row
		if err := target().Limit(1).Find(&after).Error; err != nil {
			return err
		}
		if len(after) == 0 {
			return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, descriptor.Name, recordID)
		}
		resolved = after[0]

		newVersion, _ := rowInt64(resolved, columnVersion)
		return s.recordChange(tx, companyID, descriptor.Name, recordID,
			rowString(resolved, columnDeviceID), auditOpResolve, newVersion)
	})
	if txErr != nil {
		return ResolveResult{}, txErr
	}

	tables := []string{descriptor.Name}
	s.publishActivity(companyID, tables)

	return ResolveResult{
		TableName:  descriptor.Name,
		RecordID:   recordID,
		Resolution: string(req.Resolution),
		Row:        resolved,
	}, nil
}
