package syncer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPushInsertsBrandNewRow(t *testing.T) {
	engine, db := newTestEngine(t)

	result, err := engine.Push(context.Background(), "acme", "terminal-1", []ChangeSet{{
		TableName: "customers",
		Rows: []Row{{
			"id":      "cust-1",
			"version": float64(1),
			"name":    "Sharma Traders",
		}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 1 || result.Skipped != 0 || len(result.Conflicts) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored := loadCustomer(t, db, "cust-1")
	if stored.CompanyID != "acme" {
		t.Fatalf("expected company stamped from caller context, got %q", stored.CompanyID)
	}
	if stored.SyncStatus != StatusSynced {
		t.Fatalf("expected synced status, got %q", stored.SyncStatus)
	}
	if stored.DeviceID != "terminal-1" {
		t.Fatalf("expected last writer device, got %q", stored.DeviceID)
	}
	if stored.Name != "Sharma Traders" {
		t.Fatalf("expected payload applied, got %q", stored.Name)
	}

	if audits := countRows(t, db, "sync_changes"); audits != 1 {
		t.Fatalf("expected 1 audit row, got %d", audits)
	}
}

func TestPushIsIdempotentForRepeatedNewID(t *testing.T) {
	engine, db := newTestEngine(t)

	changes := []ChangeSet{{
		TableName: "customers",
		Rows:      []Row{{"id": "cust-1", "version": float64(1), "name": "Sharma Traders"}},
	}}

	for call := 0; call < 2; call++ {
		result, err := engine.Push(context.Background(), "acme", "terminal-1", changes)
		if err != nil {
			t.Fatalf("push %d failed: %v", call, err)
		}
		if result.Applied != 1 {
			t.Fatalf("push %d: expected applied=1, got %+v", call, result)
		}
	}

	if total := countRows(t, db, "customers"); total != 1 {
		t.Fatalf("expected exactly one row after repeated push, got %d", total)
	}
}

func TestPushRejectsStaleVersion(t *testing.T) {
	engine, db := newTestEngine(t)
	seedCustomer(t, db, "acme", "cust-1", 5, testClockStart.Add(-time.Minute), "Server Name", StatusSynced)

	result, err := engine.Push(context.Background(), "acme", "terminal-2", []ChangeSet{{
		TableName: "customers",
		Rows:      []Row{{"id": "cust-1", "version": float64(2), "name": "Stale Name"}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 0 || result.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(result.Conflicts))
	}

	conflict := result.Conflicts[0]
	if conflict.ServerVersion != 5 || conflict.ClientVersion != 2 {
		t.Fatalf("unexpected conflict versions: %+v", conflict)
	}
	if conflict.TableName != "customers" || conflict.RecordID != "cust-1" {
		t.Fatalf("unexpected conflict target: %+v", conflict)
	}

	stored := loadCustomer(t, db, "cust-1")
	if stored.Name != "Server Name" || stored.Version != 5 {
		t.Fatalf("stored row data must be untouched on conflict, got %+v", stored)
	}
	if stored.SyncStatus != StatusConflict {
		t.Fatalf("expected conflict flag on stored row, got %q", stored.SyncStatus)
	}

	if audits := countRows(t, db, "sync_changes"); audits != 0 {
		t.Fatalf("rejected pushes must not be audited, got %d rows", audits)
	}
}

func TestPushOverwritesWithEqualOrHigherVersion(t *testing.T) {
	engine, db := newTestEngine(t)
	seedCustomer(t, db, "acme", "cust-1", 3, testClockStart.Add(-time.Minute), "Old Name", StatusPending)

	tests := []struct {
		name          string
		clientVersion int64
	}{
		{name: "equal-version", clientVersion: 3},
		{name: "higher-version", clientVersion: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Push(context.Background(), "acme", "terminal-2", []ChangeSet{{
				TableName: "customers",
				Rows: []Row{{
					"id":      "cust-1",
					"version": float64(tt.clientVersion),
					"name":    "New Name",
				}},
			}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Applied != 1 || len(result.Conflicts) != 0 {
				t.Fatalf("unexpected result: %+v", result)
			}

			stored := loadCustomer(t, db, "cust-1")
			if stored.Name != "New Name" {
				t.Fatalf("expected overwrite, got %q", stored.Name)
			}
			if stored.Version != tt.clientVersion {
				t.Fatalf("expected version %d, got %d", tt.clientVersion, stored.Version)
			}
			if stored.SyncStatus != StatusSynced {
				t.Fatalf("expected synced, got %q", stored.SyncStatus)
			}
			if stored.DeviceID != "terminal-2" {
				t.Fatalf("expected device terminal-2, got %q", stored.DeviceID)
			}
		})
	}
}

func TestPushSkipsRowsWithoutIdentity(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(context.Background(), "acme", "terminal-1", []ChangeSet{{
		TableName: "customers",
		Rows: []Row{
			{"name": "No Identity"},
			{"id": "cust-2", "version": float64(1), "name": "Valid"},
		},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestPushIgnoresUnknownEntities(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Push(context.Background(), "acme", "terminal-1", []ChangeSet{
		{TableName: "no_such_table", Rows: []Row{{"id": "x-1", "version": float64(1)}}},
		{TableName: "customers", Rows: []Row{{"id": "cust-1", "version": float64(1), "name": "Kept"}}},
	})
	if err != nil {
		t.Fatalf("push must not fail on unknown entities: %v", err)
	}
	if result.Applied != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestPushRequiresDeviceID(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Push(context.Background(), "acme", "", []ChangeSet{{
		TableName: "customers",
		Rows:      []Row{{"id": "cust-1"}},
	}})
	if err == nil {
		t.Fatalf("expected error for missing device id")
	}
	if !errors.Is(err, ErrMissingDeviceID) {
		t.Fatalf("expected ErrMissingDeviceID, got %v", err)
	}
}

func TestPushDoesNotTrustPayloadCompany(t *testing.T) {
	engine, db := newTestEngine(t)

	_, err := engine.Push(context.Background(), "acme", "terminal-1", []ChangeSet{{
		TableName: "customers",
		Rows: []Row{{
			"id":         "cust-1",
			"version":    float64(1),
			"company_id": "someone-else",
			"name":       "Spoofed",
		}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := loadCustomer(t, db, "cust-1")
	if stored.CompanyID != "acme" {
		t.Fatalf("company id must come from caller context, got %q", stored.CompanyID)
	}
}
