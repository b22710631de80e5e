package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
)

// boundSlack widens percentage bounds so rounding in the division can never
// exclude an entry the fuzzy tier would accept
var boundSlack = decimal.RequireFromString("0.01")

// LedgerIndex provides amount lookups over a fixed slice of ledger entries.
// Lookups return entries in their original order, so the first-match rule of
// the exact tier and the tie rule of the fuzzy tier are unaffected.
type LedgerIndex struct {
	entries []models.LedgerEntry

	// byAmount holds absolute amounts sorted ascending for range queries
	byAmount []amountIndexEntry
}

type amountIndexEntry struct {
	Amount   decimal.Decimal
	Position int
}

// NewLedgerIndex creates an index over entries. The slice is not copied and
// must not be modified afterwards.
func NewLedgerIndex(entries []models.LedgerEntry) *LedgerIndex {
	index := &LedgerIndex{
		entries:  entries,
		byAmount: make([]amountIndexEntry, len(entries)),
	}
	for i := range entries {
		index.byAmount[i] = amountIndexEntry{Amount: entries[i].Amount.Abs(), Position: i}
	}
	sort.SliceStable(index.byAmount, func(i, j int) bool {
		return index.byAmount[i].Amount.LessThan(index.byAmount[j].Amount)
	})
	return index
}

// Entries returns every indexed entry in original order
func (li *LedgerIndex) Entries() []models.LedgerEntry {
	if li == nil {
		return nil
	}
	return li.entries
}

// Len returns the number of indexed entries
func (li *LedgerIndex) Len() int {
	if li == nil {
		return 0
	}
	return len(li.entries)
}

// WithinAmount returns entries whose absolute amount is within tolerance of
// the absolute value of amount
func (li *LedgerIndex) WithinAmount(amount, tolerance decimal.Decimal) []models.LedgerEntry {
	target := amount.Abs()
	return li.rangeQuery(target.Sub(tolerance), target.Add(tolerance), true)
}

// WithinPercent returns entries whose absolute amount could be within percent
// of the absolute value of amount, measured relative to the entry amount.
// The bounds are slightly generous; callers still apply their own check.
func (li *LedgerIndex) WithinPercent(amount, percent decimal.Decimal) []models.LedgerEntry {
	target := amount.Abs().Mul(hundred)
	lower := target.Div(hundred.Add(percent)).Sub(boundSlack)

	if percent.GreaterThanOrEqual(hundred) {
		return li.rangeQuery(lower, decimal.Zero, false)
	}
	upper := target.Div(hundred.Sub(percent)).Add(boundSlack)
	return li.rangeQuery(lower, upper, true)
}

func (li *LedgerIndex) rangeQuery(minAmount, maxAmount decimal.Decimal, bounded bool) []models.LedgerEntry {
	if li == nil {
		return nil
	}

	// Find starting index using binary search
	startIdx := sort.Search(len(li.byAmount), func(i int) bool {
		return li.byAmount[i].Amount.GreaterThanOrEqual(minAmount)
	})

	var positions []int
	for i := startIdx; i < len(li.byAmount); i++ {
		entry := li.byAmount[i]
		if bounded && entry.Amount.GreaterThan(maxAmount) {
			break
		}
		positions = append(positions, entry.Position)
	}
	if len(positions) == 0 {
		return nil
	}

	sort.Ints(positions)
	result := make([]models.LedgerEntry, len(positions))
	for i, pos := range positions {
		result[i] = li.entries[pos]
	}
	return result
}
