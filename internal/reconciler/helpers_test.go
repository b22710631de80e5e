package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/vectors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(dayOfMonth int) time.Time {
	return time.Date(2026, time.January, dayOfMonth, 12, 0, 0, 0, time.UTC)
}

func newTestTransaction(id, amount string, date time.Time) *models.Transaction {
	return &models.Transaction{
		ID:         id,
		ProfileID:  19941830,
		EntityName: "Phygrid Limited",
		Direction:  models.DirectionDebit,
		Kind:       "TRANSFER",
		Date:       date,
		Amount:     d(amount),
		Currency:   "EUR",
	}
}

func newTestEntry(tranID, amount string, date time.Time, memo string) models.LedgerEntry {
	return models.LedgerEntry{
		TransactionID: tranID,
		LineID:        1,
		Type:          "VendPymt",
		Date:          date,
		Amount:        d(amount),
		Currency:      "EUR",
		AccountID:     "1200",
		AccountName:   "1200 Bank - EUR",
		EntityID:      "3",
		EntityName:    "Phygrid Limited",
		Memo:          memo,
	}
}

// fixedBooster returns the same boost for every transaction and can be told
// to panic for one id
type fixedBooster struct {
	boost   decimal.Decimal
	similar int
	panicOn string

	mu    sync.Mutex
	calls int
}

func (b *fixedBooster) Boost(ctx context.Context, tx *models.Transaction) (decimal.Decimal, []vectors.SimilarPattern) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	if tx.ID == b.panicOn {
		panic("vector store exploded")
	}
	similar := make([]vectors.SimilarPattern, b.similar)
	for i := range similar {
		similar[i] = vectors.SimilarPattern{Score: 0.87}
	}
	return b.boost, similar
}

func (b *fixedBooster) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fixedDecider answers every prompt with the same reply
type fixedDecider struct {
	reply string
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fixedDecider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.reply, f.err
}

// recordingSink stores submissions in memory and fails for one id
type recordingSink struct {
	failOn string

	mu        sync.Mutex
	submitted map[string]*models.MatchResult
}

func newRecordingSink() *recordingSink {
	return &recordingSink{submitted: make(map[string]*models.MatchResult)}
}

func (s *recordingSink) Submit(ctx context.Context, tx *models.Transaction, result *models.MatchResult) (string, error) {
	if tx.ID == s.failOn {
		return "", fmt.Errorf("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted[tx.ID] = result
	return "sg-" + tx.ID, nil
}

func (s *recordingSink) ids() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.submitted))
	for id := range s.submitted {
		out[id] = true
	}
	return out
}

// fakeLedger serves fixed entries and counts calls
type fakeLedger struct {
	entries []models.LedgerEntry
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeLedger) LedgerEntries(ctx context.Context, subsidiaryID string, start, end time.Time) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakePatterns struct {
	patterns []models.Pattern
	err      error
}

func (f *fakePatterns) ActivePatterns(ctx context.Context) ([]models.Pattern, error) {
	return f.patterns, f.err
}
