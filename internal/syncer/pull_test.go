package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPullWithoutWatermarkReturnsEverything(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	seedCustomer(t, db, "acme", "cust-1", 1, base, "One", StatusPending)
	seedCustomer(t, db, "acme", "cust-2", 2, base.Add(time.Minute), "Two", StatusPending)
	seedCustomer(t, db, "acme", "cust-3", 3, base.Add(2*time.Minute), "Three", StatusPending)

	result, err := engine.Pull(context.Background(), "acme", PullRequest{DeviceID: "terminal-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, ok := result.Data["customers"]
	if !ok {
		t.Fatalf("expected customers in pull response")
	}
	if page.Count != 3 || page.HasMore {
		t.Fatalf("unexpected page: count=%d has_more=%v", page.Count, page.HasMore)
	}
	if _, ok := result.Data["invoices"]; ok {
		t.Fatalf("relations with zero rows must be omitted")
	}
	if result.TotalRows != 3 {
		t.Fatalf("expected total 3, got %d", result.TotalRows)
	}
	if len(result.TablesSynced) != 1 || result.TablesSynced[0] != "customers" {
		t.Fatalf("unexpected tables_synced: %v", result.TablesSynced)
	}
	if result.SyncTimestamp.IsZero() {
		t.Fatalf("expected a sync timestamp")
	}
}

func TestPullFiltersByWatermark(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	seedCustomer(t, db, "acme", "cust-1", 1, base, "Before", StatusSynced)
	seedCustomer(t, db, "acme", "cust-2", 2, base.Add(10*time.Minute), "After", StatusPending)

	watermark := base.Add(5 * time.Minute)
	result, err := engine.Pull(context.Background(), "acme", PullRequest{
		DeviceID:  "terminal-1",
		Watermark: &watermark,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page := result.Data["customers"]
	if page.Count != 1 {
		t.Fatalf("expected exactly the row changed after the watermark, got %d", page.Count)
	}
	if id := rowString(page.Rows[0], "id"); id != "cust-2" {
		t.Fatalf("unexpected row %q", id)
	}
}

func TestPullScopesToCompany(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	seedCustomer(t, db, "acme", "cust-1", 1, base, "Mine", StatusPending)
	seedCustomer(t, db, "rival", "cust-2", 1, base, "Theirs", StatusPending)

	result, err := engine.Pull(context.Background(), "acme", PullRequest{DeviceID: "terminal-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := result.Data["customers"]
	if page.Count != 1 || rowString(page.Rows[0], "id") != "cust-1" {
		t.Fatalf("expected only acme rows, got %+v", page)
	}
}

func TestPullPaginatesAndIsRepeatable(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	for i := 0; i < 7; i++ {
		seedCustomer(t, db, "acme", fmt.Sprintf("cust-%02d", i), int64(i+1),
			base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("Customer %d", i), StatusPending)
	}

	request := PullRequest{DeviceID: "terminal-1", PageSize: 5}

	first, err := engine.Pull(context.Background(), "acme", request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := first.Data["customers"]
	if page.Count != 5 || !page.HasMore {
		t.Fatalf("expected a full page with has_more, got count=%d has_more=%v", page.Count, page.HasMore)
	}
	if rowString(page.Rows[0], "id") != "cust-00" {
		t.Fatalf("expected version-ascending order, first row %q", rowString(page.Rows[0], "id"))
	}

	// Pull is stateless: the same watermark yields the same first page.
	second, err := engine.Pull(context.Background(), "acme", request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repeat := second.Data["customers"]
	if repeat.Count != page.Count {
		t.Fatalf("repeated pull changed the page: %d vs %d", repeat.Count, page.Count)
	}
	for i := range page.Rows {
		if rowString(page.Rows[i], "id") != rowString(repeat.Rows[i], "id") {
			t.Fatalf("repeated pull reordered rows at %d", i)
		}
	}
}

func TestPullChainedWatermarksCoverEveryRowExactlyOnce(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	seedCustomer(t, db, "acme", "cust-1", 1, base, "One", StatusPending)
	seedCustomer(t, db, "acme", "cust-2", 2, base.Add(time.Minute), "Two", StatusPending)

	first, err := engine.Pull(context.Background(), "acme", PullRequest{DeviceID: "terminal-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalRows != 2 {
		t.Fatalf("expected both rows on first pull, got %d", first.TotalRows)
	}

	// A business write commits after the first pull's cursor was taken.
	seedCustomer(t, db, "acme", "cust-3", 1, first.SyncTimestamp.Add(time.Second), "Three", StatusPending)

	watermark := first.SyncTimestamp
	second, err := engine.Pull(context.Background(), "acme", PullRequest{
		DeviceID:  "terminal-1",
		Watermark: &watermark,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := second.Data["customers"]
	if page.Count != 1 || rowString(page.Rows[0], "id") != "cust-3" {
		t.Fatalf("second pull must deliver exactly the new row, got %+v", page)
	}
}

func TestPullHonorsRequestedSubset(t *testing.T) {
	engine, db := newTestEngine(t)
	base := testClockStart.Add(-time.Hour)
	seedCustomer(t, db, "acme", "cust-1", 1, base, "One", StatusPending)
	vendor := map[string]any{
		"id": "vend-1", "company_id": "acme", "version": int64(1),
		"sync_status": StatusPending, "name": "Vendor One",
		"created_at": base, "updated_at": base,
	}
	if err := db.Table("vendors").Create(vendor).Error; err != nil {
		t.Fatalf("failed to seed vendor: %v", err)
	}

	result, err := engine.Pull(context.Background(), "acme", PullRequest{
		DeviceID: "terminal-1",
		Tables:   []string{"vendors", "not_in_catalog"},
	})
	if err != nil {
		t.Fatalf("unknown names must not fail the pull: %v", err)
	}
	if _, ok := result.Data["customers"]; ok {
		t.Fatalf("unrequested relation must not appear")
	}
	if _, ok := result.Data["vendors"]; !ok {
		t.Fatalf("requested relation missing")
	}
}

func TestPullRequiresDeviceID(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Pull(context.Background(), "acme", PullRequest{})
	if !errors.Is(err, ErrMissingDeviceID) {
		t.Fatalf("expected ErrMissingDeviceID, got %v", err)
	}
}
