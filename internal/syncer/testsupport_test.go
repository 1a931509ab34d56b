package syncer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/tallyworks/syncd/internal/erp"
	"github.com/tallyworks/syncd/internal/registry"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.index++
	if g.index > 10000 {
		return "", errors.New("exhausted ids")
	}
	return fmt.Sprintf("change-%d", g.index), nil
}

var testClockStart = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:syncd_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := append(erp.Models(), &SyncChange{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	engine, err := NewService(ServiceConfig{
		Database: db,
		Catalog:  registry.Default(),
		Clock:    func() time.Time { return testClockStart },
		IDs:      &staticIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct sync engine: %v", err)
	}
	return engine, db
}

func seedCustomer(t *testing.T, db *gorm.DB, companyID, id string, version int64, updatedAt time.Time, name, status string) {
	t.Helper()
	customer := erp.Customer{
		SyncColumns: erp.SyncColumns{
			ID:         id,
			CompanyID:  companyID,
			Version:    version,
			SyncStatus: status,
			CreatedAt:  updatedAt.Add(-time.Hour),
			UpdatedAt:  updatedAt,
		},
		Name: name,
	}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("failed to seed customer %s: %v", id, err)
	}
}

func loadCustomer(t *testing.T, db *gorm.DB, id string) erp.Customer {
	t.Helper()
	var customer erp.Customer
	if err := db.Where("id = ?", id).Take(&customer).Error; err != nil {
		t.Fatalf("failed to load customer %s: %v", id, err)
	}
	return customer
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var total int64
	if err := db.Table(table).Count(&total).Error; err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return total
}
