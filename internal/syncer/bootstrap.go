package syncer

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BootstrapRequest asks for one page of the full-table dump used to seed a
// brand-new terminal. The caller drives paging by repeating the call with
// an increasing offset until every relation's total is covered.
type BootstrapRequest struct {
	DeviceID  string
	Tables    []string
	BatchSize int
	Offset    int
}

// BootstrapPage is one relation's slice of the dump.
type BootstrapPage struct {
	Rows  []Row `json:"rows"`
	Count int   `json:"count"`
	Total int64 `json:"total"`
}

// BootstrapResult carries the per-relation pages.
type BootstrapResult struct {
	TablesIncluded []string                 `json:"tables_included"`
	TotalRows      int                      `json:"total_rows"`
	Data           map[string]BootstrapPage `json:"data"`
}

// Bootstrap returns one page per selected relation, ordered by creation
// order so offsets are stable across calls. Unknown and unprovisioned
// relations are skipped; a relation whose query fails is omitted rather
// than aborting the whole bootstrap.
func (s *Service) Bootstrap(ctx context.Context, companyID string, req BootstrapRequest) (BootstrapResult, error) {
	if strings.TrimSpace(req.DeviceID) == "" {
		return BootstrapResult{}, ErrMissingDeviceID
	}
	batchSize := clampPageSize(req.BatchSize)
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	result := BootstrapResult{
		TablesIncluded: make([]string, 0),
		Data:           make(map[string]BootstrapPage),
	}

	for _, descriptor := range s.catalog.Resolve(req.Tables) {
		if !s.provisioned(descriptor.Name) {
			continue
		}

		scoped := func() *gorm.DB {
			query := s.db.WithContext(ctx).Table(descriptor.Name)
			if descriptor.CompanyScoped {
				query = query.Where(columnCompanyID+" = ?", companyID)
			}
			return query
		}

		var total int64
		if err := scoped().Count(&total).Error; err != nil {
			s.logger.Warn("bootstrap count failed, relation omitted",
				zap.String("table", descriptor.Name),
				zap.Error(err))
			continue
		}

		var rows []Row
		err := scoped().
			Order(columnCreatedAt + " ASC, " + columnID + " ASC").
			Limit(batchSize).
			Offset(offset).
			Find(&rows).Error
		if err != nil {
			s.logger.Warn("bootstrap query failed, relation omitted",
				zap.String("table", descriptor.Name),
				zap.Error(err))
			continue
		}

		result.Data[descriptor.Name] = BootstrapPage{
			Rows:  rows,
			Count: len(rows),
			Total: total,
		}
		result.TablesIncluded = append(result.TablesIncluded, descriptor.Name)
		result.TotalRows += len(rows)
	}

	s.touchDevice(ctx, companyID, req.DeviceID)
	return result, nil
}
