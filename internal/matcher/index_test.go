package matcher

import (
	"fmt"
	"testing"

	"bank-reconciliation-service/internal/models"
)

func createIndexTestEntries() []models.LedgerEntry {
	return []models.LedgerEntry{
		newTestEntry("JE-1", "100.00", day(2026, 1, 1), ""),
		newTestEntry("JE-2", "-250.00", day(2026, 1, 1), ""),
		newTestEntry("JE-3", "100.01", day(2026, 1, 2), ""),
		newTestEntry("JE-4", "980.50", day(2026, 1, 2), ""),
		newTestEntry("JE-5", "99.99", day(2026, 1, 3), ""),
		newTestEntry("JE-6", "1020.40", day(2026, 1, 3), ""),
		newTestEntry("JE-7", "100.00", day(2026, 1, 4), ""),
	}
}

func TestLedgerIndex_WithinAmount(t *testing.T) {
	index := NewLedgerIndex(createIndexTestEntries())

	tests := []struct {
		name      string
		amount    string
		tolerance string
		expected  []string
	}{
		{"keeps original order", "100.00", "0.01", []string{"JE-1", "JE-3", "JE-5", "JE-7"}},
		{"exact only", "-100.00", "0", []string{"JE-1", "JE-7"}},
		{"absolute amounts", "250.00", "0.01", []string{"JE-2"}},
		{"nothing in range", "500.00", "0.01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledgerIDs(index.WithinAmount(d(tt.amount), d(tt.tolerance)))
			if !equalStrings(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestLedgerIndex_WithinPercent(t *testing.T) {
	index := NewLedgerIndex(createIndexTestEntries())

	got := ledgerIDs(index.WithinPercent(d("1000.00"), d("2.0")))
	expected := []string{"JE-4", "JE-6"}
	if !equalStrings(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if all := index.WithinPercent(d("1000.00"), d("100")); len(all) != 2 {
		t.Errorf("Expected unbounded upper range to return 2 entries, got %d", len(all))
	}
}

func TestLedgerIndex_NeverDropsFuzzyMatches(t *testing.T) {
	entries := createIndexTestEntries()
	index := NewLedgerIndex(entries)
	fm := NewFuzzyMatcher(nil)

	from := d("1100")
	tx := newTestTransaction("TX", "1000.00", day(2026, 1, 2))
	tx.FromAmount = &from
	tx.FromCurrency = "USD"

	full := fm.Match(tx, entries)
	narrowed := fm.Match(tx, index.WithinPercent(tx.Amount, fm.config.FXVariancePercent))
	if full == nil || narrowed == nil {
		t.Fatalf("Expected both searches to match, got %v and %v", full, narrowed)
	}
	if full.LedgerTransactionID != narrowed.LedgerTransactionID {
		t.Errorf("Expected %s from the index, got %s", full.LedgerTransactionID, narrowed.LedgerTransactionID)
	}
}

func TestLedgerIndex_Empty(t *testing.T) {
	index := NewLedgerIndex(nil)
	if index.Len() != 0 || index.WithinAmount(d("1"), d("1")) != nil {
		t.Error("Expected empty index to return nothing")
	}
}

func BenchmarkLedgerIndex_WithinAmount(b *testing.B) {
	entries := make([]models.LedgerEntry, 10000)
	for i := range entries {
		entries[i] = newTestEntry(fmt.Sprintf("JE-%d", i), fmt.Sprintf("%d.50", i%500), day(2026, 1, 1), "")
	}
	index := NewLedgerIndex(entries)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		index.WithinAmount(d("1.50"), d("0.01"))
	}
}
