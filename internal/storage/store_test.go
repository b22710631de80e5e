package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/vectors"
	"bank-reconciliation-service/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Expected no error opening store, got %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPattern(value, target string) models.Pattern {
	return models.Pattern{
		Kind:        models.PatternCounterparty,
		Value:       value,
		TargetType:  models.TargetAccount,
		TargetID:    target,
		TargetName:  "Accounts Receivable",
		Boost:       decimal.RequireFromString("0.10"),
		Description: "Learned from TX-1",
	}
}

func TestOpenFileDatabaseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconciler.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := first.SubmitPattern(ctx, testPattern("Phygrid", "1200")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_ = first.Close()

	// Second open finds the schema current and keeps the data
	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Expected no error on reopen, got %v", err)
	}
	defer second.Close()

	patterns, err := second.ActivePatterns(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(patterns) != 1 {
		t.Errorf("Expected 1 pattern after reopen, got %d", len(patterns))
	}
}

func TestPatternLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SubmitPattern(ctx, testPattern("Phygrid", "1200")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	regex := testPattern(`INV-\d{4}-\d{3}`, "1200")
	regex.Kind = models.PatternReference
	regex.IsRegex = true
	if err := store.SubmitPattern(ctx, regex); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	patterns, err := store.ActivePatterns(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("Expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].Value != "Phygrid" || patterns[0].ID != "1" {
		t.Errorf("Expected first pattern Phygrid with id 1, got %q id %q", patterns[0].Value, patterns[0].ID)
	}
	if !patterns[1].IsRegex || patterns[1].Value != `INV-\d{4}-\d{3}` {
		t.Errorf("Expected regex pattern to round trip, got %+v", patterns[1])
	}
	if !patterns[0].Boost.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("Expected boost 0.10, got %s", patterns[0].Boost)
	}

	if err := store.DeactivatePattern(ctx, patterns[0].ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	patterns, _ = store.ActivePatterns(ctx)
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 active pattern after deactivate, got %d", len(patterns))
	}

	// Resubmitting the same rule reactivates it rather than duplicating it
	again := testPattern("Phygrid", "1200")
	again.Boost = decimal.RequireFromString("0.15")
	if err := store.SubmitPattern(ctx, again); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	patterns, _ = store.ActivePatterns(ctx)
	if len(patterns) != 2 {
		t.Fatalf("Expected 2 active patterns after resubmit, got %d", len(patterns))
	}
	if patterns[0].ID != "1" || !patterns[0].Boost.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("Expected pattern 1 reactivated with boost 0.15, got id %s boost %s", patterns[0].ID, patterns[0].Boost)
	}
}

func TestSubmitPatternValidation(t *testing.T) {
	store := openTestStore(t)

	invalid := testPattern("", "1200")
	err := store.SubmitPattern(context.Background(), invalid)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("Expected ReconcilerError, got %v", err)
	}
	if rerr.Category != errors.CategoryValidation {
		t.Errorf("Expected validation category, got %s", rerr.Category)
	}
}

func TestDeactivatePatternErrors(t *testing.T) {
	store := openTestStore(t)

	tests := []struct {
		name string
		id   string
		code errors.ErrorCode
	}{
		{"unknown id", "42", errors.CodeNotFound},
		{"non numeric id", "abc", errors.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.DeactivatePattern(context.Background(), tt.id)
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("Expected ReconcilerError, got %v", err)
			}
			if rerr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, rerr.Code)
			}
		})
	}
}

func testTransaction() *models.Transaction {
	return &models.Transaction{
		ID:               "TX-1",
		EntityName:       "Phygrid Limited",
		Direction:        models.DirectionCredit,
		Date:             time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString("1500.00"),
		Currency:         "EUR",
		CounterpartyName: "Acme GmbH",
		PaymentReference: "INV-2026-001",
	}
}

func TestSubmitSuggestionIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	tx := testTransaction()

	first := &models.MatchResult{
		MatchType:           models.MatchFuzzyMedium,
		Confidence:          decimal.RequireFromString("0.75"),
		Action:              models.ActionReview,
		Reasons:             []string{"Base: 0.75 (fuzzy_medium)", "Final: 0.75 -> review"},
		LedgerTransactionID: "JE-1",
		LedgerLineID:        1,
		SuggestedAccountID:  "1200",
	}
	id, err := store.Submit(ctx, tx, first)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id == "" {
		t.Fatal("Expected a suggestion id")
	}

	second := &models.MatchResult{
		MatchType:           models.MatchExactAll,
		Confidence:          decimal.RequireFromString("1.00"),
		Action:              models.ActionAutoApprove,
		Reasons:             []string{"Base: 1.00 (exact_all)", "Final: 1.00 -> auto_approve"},
		LedgerTransactionID: "JE-2",
		LedgerLineID:        3,
		SuggestedAccountID:  "1200",
		IsIntercompany:      true,
		CounterpartyEntity:  "Fendops Kft",
	}
	againID, err := store.Submit(ctx, tx, second)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if againID != id {
		t.Errorf("Expected resubmission to keep id %s, got %s", id, againID)
	}

	all, err := store.ListSuggestions(ctx, 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(all))
	}

	sg, err := store.Suggestion(ctx, "TX-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sg.LedgerTransactionID != "JE-2" || sg.LedgerLineID != 3 {
		t.Errorf("Expected latest ledger match JE-2/3, got %s/%d", sg.LedgerTransactionID, sg.LedgerLineID)
	}
	if sg.MatchType != models.MatchExactAll || sg.Action != models.ActionAutoApprove {
		t.Errorf("Expected exact_all/auto_approve, got %s/%s", sg.MatchType, sg.Action)
	}
	if !sg.Confidence.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected confidence 1.00, got %s", sg.Confidence)
	}
	if !sg.IsIntercompany || sg.CounterpartyEntity != "Fendops Kft" {
		t.Errorf("Expected intercompany with Fendops Kft, got %v %q", sg.IsIntercompany, sg.CounterpartyEntity)
	}
	if len(sg.Reasons) != 2 || sg.Reasons[1] != "Final: 1.00 -> auto_approve" {
		t.Errorf("Expected reasons to round trip, got %v", sg.Reasons)
	}
	if !sg.TransactionDate.Equal(tx.Date) {
		t.Errorf("Expected date %v, got %v", tx.Date, sg.TransactionDate)
	}
	if !sg.Amount.Equal(tx.Amount) {
		t.Errorf("Expected amount %s, got %s", tx.Amount, sg.Amount)
	}
}

func TestSuggestionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Suggestion(context.Background(), "missing")
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("Expected ReconcilerError, got %v", err)
	}
	if rerr.Code != errors.CodeNotFound {
		t.Errorf("Expected not_found, got %s", rerr.Code)
	}
}

func TestSuggestionRebuildsTransaction(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	card := &models.Transaction{
		ID:                  "CARD-1004",
		ProfileID:           19941830,
		EntityName:          "Phygrid Limited",
		Direction:           models.DirectionDebit,
		Kind:                "CARD",
		Date:                time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		Amount:              decimal.RequireFromString("-250.00"),
		Currency:            "EUR",
		Description:         "Hosting",
		CounterpartyAccount: "DE02120300000000202051",
		MerchantName:        "Hetzner Online",
		MerchantCategory:    "Computer Services",
	}
	result := &models.MatchResult{
		MatchType:           models.MatchExactAmountDate,
		Confidence:          decimal.RequireFromString("0.90"),
		Action:              models.ActionSuggest,
		LedgerTransactionID: "JE-250",
		SuggestedAccountID:  "6400",
	}
	if _, err := store.Submit(ctx, card, result); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	sg, err := store.Suggestion(ctx, card.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	rebuilt := sg.Transaction()

	if rebuilt.MerchantName != "Hetzner Online" || rebuilt.MerchantCategory != "Computer Services" {
		t.Errorf("Expected merchant to round trip, got %q / %q", rebuilt.MerchantName, rebuilt.MerchantCategory)
	}
	if rebuilt.Kind != "CARD" || rebuilt.Direction != models.DirectionDebit || rebuilt.ProfileID != card.ProfileID {
		t.Errorf("Expected CARD/DEBIT/%d, got %s/%s/%d", card.ProfileID, rebuilt.Kind, rebuilt.Direction, rebuilt.ProfileID)
	}
	if rebuilt.CounterpartyAccount != card.CounterpartyAccount {
		t.Errorf("Expected counterparty account %s, got %s", card.CounterpartyAccount, rebuilt.CounterpartyAccount)
	}

	// Stored and searched embeddings must be built from the same text
	if got, want := vectors.EmbeddingText(rebuilt), vectors.EmbeddingText(card); got != want {
		t.Errorf("Expected embedding text %q, got %q", want, got)
	}
}
