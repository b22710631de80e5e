package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/vectors"
)

type fakeStore struct {
	similar  []vectors.SimilarPattern
	findErr  error
	storeErr error
	stored   []string
	deleted  []uuid.UUID
	deadline bool
}

func (s *fakeStore) DeletePattern(ctx context.Context, id uuid.UUID) (bool, error) {
	s.deleted = append(s.deleted, id)
	return true, nil
}

func (s *fakeStore) FindSimilar(ctx context.Context, tx *models.Transaction, minScore float64, limit int) ([]vectors.SimilarPattern, error) {
	_, s.deadline = ctx.Deadline()
	if minScore != 0.85 || limit != 5 {
		return nil, fmt.Errorf("unexpected search parameters %.2f/%d", minScore, limit)
	}
	return s.similar, s.findErr
}

func (s *fakeStore) StorePattern(ctx context.Context, tx *models.Transaction, matchedTo, matchType string) (uuid.UUID, error) {
	if s.storeErr != nil {
		return uuid.Nil, s.storeErr
	}
	s.stored = append(s.stored, tx.ID+"->"+matchedTo+"/"+matchType)
	return uuid.New(), nil
}

type fakeSubmitter struct {
	failOn    string
	submitted []models.Pattern
}

func (s *fakeSubmitter) SubmitPattern(ctx context.Context, p models.Pattern) error {
	if p.Value == s.failOn {
		return fmt.Errorf("store unavailable")
	}
	s.submitted = append(s.submitted, p)
	return nil
}

func hits(scores ...float64) []vectors.SimilarPattern {
	out := make([]vectors.SimilarPattern, len(scores))
	for i, s := range scores {
		out[i] = vectors.SimilarPattern{Score: s}
	}
	return out
}

func testTransaction() *models.Transaction {
	return &models.Transaction{
		ID:               "TX-55",
		Direction:        models.DirectionDebit,
		Kind:             "CARD",
		Date:             time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString("49.00"),
		Currency:         "EUR",
		CounterpartyName: "  Figma Inc ",
		PaymentReference: "Payment for inv/2026/318",
		MerchantName:     "FIGMA",
	}
}

func TestPatternLearner_Boost(t *testing.T) {
	tests := []struct {
		name     string
		similar  []vectors.SimilarPattern
		err      error
		expected string
	}{
		{"no similar approvals", nil, nil, "0"},
		{"search failure", nil, fmt.Errorf("qdrant down"), "0"},
		{"one hit", hits(0.86), nil, "0.10"},
		{"one very close hit", hits(0.97), nil, "0.15"},
		{"close hits", hits(0.91, 0.92), nil, "0.12"},
		{"five hits", hits(0.86, 0.87, 0.88, 0.86, 0.87), nil, "0.15"},
		{"five very close hits", hits(0.96, 0.97, 0.95, 0.99, 0.98), nil, "0.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{similar: tt.similar, findErr: tt.err}
			learner := NewPatternLearner(store, nil, Config{})

			boost, similar := learner.Boost(context.Background(), testTransaction())
			if !boost.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("Expected boost %s, got %s", tt.expected, boost)
			}
			if tt.err == nil && len(similar) != len(tt.similar) {
				t.Errorf("Expected %d similar patterns, got %d", len(tt.similar), len(similar))
			}
			if !store.deadline {
				t.Error("Expected the search to run under a deadline")
			}
		})
	}
}

func TestPatternLearner_BoostWithoutStore(t *testing.T) {
	learner := NewPatternLearner(nil, nil, Config{})
	if boost, _ := learner.Boost(context.Background(), testTransaction()); !boost.IsZero() {
		t.Errorf("Expected zero boost without a store, got %s", boost)
	}
}

func TestBoostForCount(t *testing.T) {
	tests := map[int]string{
		0:  "0.10",
		1:  "0.10",
		4:  "0.10",
		5:  "0.15",
		9:  "0.15",
		10: "0.20",
		19: "0.20",
		20: "0.25",
		99: "0.25",
	}
	for count, expected := range tests {
		if got := BoostForCount(count); !got.Equal(decimal.RequireFromString(expected)) {
			t.Errorf("BoostForCount(%d): expected %s, got %s", count, expected, got)
		}
	}
}

func TestReferenceFormat(t *testing.T) {
	tests := []struct {
		reference string
		expected  string
		found     bool
	}{
		{"INV-2026-001", `INV[-/]\d{4}[-/]\d+`, true},
		{"payment inv/2026/7", `INV[-/]\d{4}[-/]\d+`, true},
		{"PO-2025-88", `PO[-/]\d{4}[-/]\d+`, true},
		{"Invoice #4411", `Invoice\s*#?\s*\d+`, true},
		{"bill 93", `Bill\s*#?\s*\d+`, true},
		{"Salary March", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			got, ok := ReferenceFormat(tt.reference)
			if ok != tt.found || got != tt.expected {
				t.Errorf("Expected (%q, %v), got (%q, %v)", tt.expected, tt.found, got, ok)
			}
		})
	}
}

func TestExtractPatterns(t *testing.T) {
	approval := Approval{LedgerTransactionID: "BILL-77", AccountID: "6420", AccountName: "6420 Software", MatchType: models.MatchFuzzyHigh}
	patterns := ExtractPatterns(testTransaction(), approval)

	if len(patterns) != 3 {
		t.Fatalf("Expected 3 patterns, got %d", len(patterns))
	}

	expected := []struct {
		kind    models.PatternKind
		value   string
		isRegex bool
		boost   string
	}{
		{models.PatternCounterparty, "Figma Inc", false, "0.15"},
		{models.PatternReference, `INV[-/]\d{4}[-/]\d+`, true, "0.20"},
		{models.PatternCounterparty, "FIGMA", false, "0.15"},
	}
	for i, e := range expected {
		p := patterns[i]
		if p.Kind != e.kind || p.Value != e.value || p.IsRegex != e.isRegex || !p.Boost.Equal(decimal.RequireFromString(e.boost)) {
			t.Errorf("Pattern %d: expected %+v, got %+v", i, e, p)
		}
		if p.TargetType != models.TargetAccount || p.TargetID != "6420" || p.TargetName != "6420 Software" {
			t.Errorf("Pattern %d: unexpected target %+v", i, p)
		}
		if p.Description != "Learned from TX-55" {
			t.Errorf("Pattern %d: unexpected description %q", i, p.Description)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("Pattern %d is invalid: %v", i, err)
		}
	}

	short := testTransaction()
	short.CounterpartyName = " AB "
	short.PaymentReference = ""
	short.MerchantName = ""
	if got := ExtractPatterns(short, approval); len(got) != 0 {
		t.Errorf("Expected no patterns for a short counterparty, got %+v", got)
	}
}

func TestPatternLearner_Learn(t *testing.T) {
	approval := Approval{LedgerTransactionID: "BILL-77", AccountID: "6420", AccountName: "6420 Software", MatchType: models.MatchExactAll}

	t.Run("stores embedding and submits patterns", func(t *testing.T) {
		store := &fakeStore{}
		submitter := &fakeSubmitter{failOn: "FIGMA"}
		learner := NewPatternLearner(store, submitter, Config{})

		learned := learner.Learn(context.Background(), testTransaction(), approval)
		if len(learned) != 2 {
			t.Errorf("Expected 2 learned patterns after one failure, got %d", len(learned))
		}
		if len(store.stored) != 1 || store.stored[0] != "TX-55->BILL-77/exact_all" {
			t.Errorf("Unexpected stored embeddings: %v", store.stored)
		}
	})

	t.Run("embedding failure does not stop pattern extraction", func(t *testing.T) {
		store := &fakeStore{storeErr: fmt.Errorf("no key")}
		submitter := &fakeSubmitter{}
		learner := NewPatternLearner(store, submitter, Config{})

		if learned := learner.Learn(context.Background(), testTransaction(), approval); len(learned) != 3 {
			t.Errorf("Expected 3 learned patterns, got %d", len(learned))
		}
	})

	t.Run("no submitter", func(t *testing.T) {
		learner := NewPatternLearner(&fakeStore{}, nil, Config{})
		if learned := learner.Learn(context.Background(), testTransaction(), approval); learned != nil {
			t.Errorf("Expected nothing learned without a submitter, got %+v", learned)
		}
	})
}

func TestPatternLearner_Forget(t *testing.T) {
	id := uuid.MustParse("6f1c1f5e-8a52-4d7a-9a55-1b2f0f0b4c11")

	store := &fakeStore{}
	learner := NewPatternLearner(store, nil, Config{})
	deleted, err := learner.Forget(context.Background(), id)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !deleted || len(store.deleted) != 1 || store.deleted[0] != id {
		t.Errorf("Expected %s deleted, got %v", id, store.deleted)
	}

	if _, err := NewPatternLearner(nil, nil, Config{}).Forget(context.Background(), id); err == nil {
		t.Error("Expected error without a similarity store")
	}
}
