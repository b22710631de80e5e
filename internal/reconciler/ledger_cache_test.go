package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bank-reconciliation-service/internal/models"
)

func TestLedgerCacheKey(t *testing.T) {
	start := time.Date(2026, time.January, 1, 23, 30, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)

	expected := "gl_entries:3:2026-01-01:2026-01-31"
	if key := ledgerCacheKey("3", start, end); key != expected {
		t.Errorf("Expected key %q, got %q", expected, key)
	}
}

func TestCachedLedgerProvider(t *testing.T) {
	ledger := &fakeLedger{entries: []models.LedgerEntry{newTestEntry("JE-1", "10.00", day(5), "")}}
	cached := NewCachedLedgerProvider(ledger, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entries, err := cached.LedgerEntries(ctx, "3", day(1), day(31))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("Expected 1 entry, got %d", len(entries))
		}
	}
	if ledger.calls != 1 {
		t.Errorf("Expected 1 upstream call for the same period, got %d", ledger.calls)
	}

	if _, err := cached.LedgerEntries(ctx, "4", day(1), day(31)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := cached.LedgerEntries(ctx, "3", day(2), day(31)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ledger.calls != 3 {
		t.Errorf("Expected other subsidiaries and periods to miss, got %d calls", ledger.calls)
	}
}

func TestCachedLedgerProvider_SkipsEmptyAndErrors(t *testing.T) {
	ctx := context.Background()

	empty := &fakeLedger{}
	cached := NewCachedLedgerProvider(empty, 0)
	_, _ = cached.LedgerEntries(ctx, "3", day(1), day(31))
	_, _ = cached.LedgerEntries(ctx, "3", day(1), day(31))
	if empty.calls != 2 {
		t.Errorf("Expected empty results not to be cached, got %d calls", empty.calls)
	}

	failing := &fakeLedger{err: fmt.Errorf("timeout")}
	cached = NewCachedLedgerProvider(failing, 0)
	if _, err := cached.LedgerEntries(ctx, "3", day(1), day(31)); err == nil {
		t.Error("Expected upstream error to be returned")
	}
}
