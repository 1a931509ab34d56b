package syncer

import (
	"context"

	"go.uber.org/zap"
)

// EntityStatus counts a relation's outstanding rows.
type EntityStatus struct {
	Pending  int64 `json:"pending"`
	Conflict int64 `json:"conflict"`
}

// StatusReport aggregates outstanding pending and conflicted rows across
// the catalog. Relations with nothing outstanding are omitted.
type StatusReport struct {
	Tables map[string]EntityStatus `json:"tables"`
	Totals EntityStatus            `json:"totals"`
}

// Status is a read-only sweep over every provisioned relation. A relation
// whose counts fail is omitted, matching the pull partial-result policy.
func (s *Service) Status(ctx context.Context, companyID string) (StatusReport, error) {
	report := StatusReport{Tables: make(map[string]EntityStatus)}

	for _, descriptor := range s.catalog.All() {
		if !s.provisioned(descriptor.Name) {
			continue
		}

		count := func(status string) (int64, error) {
			query := s.db.WithContext(ctx).Table(descriptor.Name).
				Where(columnSyncStatus+" = ?", status)
			if descriptor.CompanyScoped {
				query = query.Where(columnCompanyID+" = ?", companyID)
			}
			var total int64
			err := query.Count(&total).Error
			return total, err
		}

		pending, err := count(StatusPending)
		if err != nil {
			s.logger.Warn("status count failed, relation omitted",
				zap.String("table", descriptor.Name), zap.Error(err))
			continue
		}
		conflicted, err := count(StatusConflict)
		if err != nil {
			s.logger.Warn("status count failed, relation omitted",
				zap.String("table", descriptor.Name), zap.Error(err))
			continue
		}

		if pending == 0 && conflicted == 0 {
			continue
		}
		report.Tables[descriptor.Name] = EntityStatus{Pending: pending, Conflict: conflicted}
		report.Totals.Pending += pending
		report.Totals.Conflict += conflicted
	}

	return report, nil
}

// Confirmation acknowledges receipt of pulled rows for one relation.
type Confirmation struct {
	TableName string
	RecordIDs []string
}

// MarkSynced flips acknowledged rows from pending to synced. Conflicted
// rows are left alone; only a resolution clears those. Unknown relations
// and unknown ids are ignored. Returns the number of rows flipped.
func (s *Service) MarkSynced(ctx context.Context, companyID string, confirmations []Confirmation) (int64, error) {
	var marked int64
	for _, confirmation := range confirmations {
		descriptor, known := s.catalog.Lookup(confirmation.TableName)
		if !known || !s.provisioned(descriptor.Name) || len(confirmation.RecordIDs) == 0 {
			continue
		}

		query := s.db.WithContext(ctx).Table(descriptor.Name).
			Where(columnID+" IN ?", confirmation.RecordIDs).
			Where(columnSyncStatus+" = ?", StatusPending)
		if descriptor.CompanyScoped {
			query = query.Where(columnCompanyID+" = ?", companyID)
		}

		result := query.Update(columnSyncStatus, StatusSynced)
		if result.Error != nil {
			s.logError(opMarkSynced, "update_failed", result.Error,
				zap.String("table", descriptor.Name))
			continue
		}
		marked += result.RowsAffected
	}
	return marked, nil
}
