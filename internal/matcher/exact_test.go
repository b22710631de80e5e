package matcher

import (
	"testing"

	"bank-reconciliation-service/internal/models"
)

func TestExactMatcher_ReferenceNamesLedgerTransaction(t *testing.T) {
	em := NewExactMatcher(nil, nil)

	tx := newTestTransaction("TX-1001", "-1500.00", day(2026, 1, 15))
	tx.PaymentReference = "INV-2026-001"

	candidates := []models.LedgerEntry{
		newTestEntry("INV-2026-001", "1500.00", day(2026, 1, 16), "Consulting January"),
	}

	result := em.Match(tx, candidates, nil)
	if result == nil {
		t.Fatal("Expected a match, got nil")
	}
	if result.MatchType != models.MatchExactAll {
		t.Errorf("Expected match type %s, got %s", models.MatchExactAll, result.MatchType)
	}
	if !result.Confidence.Equal(d("1.00")) {
		t.Errorf("Expected confidence 1.00, got %s", result.Confidence)
	}
	expectedReasons := []string{"amount_exact", "date_within_1_day", "reference_contains_tranid"}
	if !equalStrings(result.Reasons, expectedReasons) {
		t.Errorf("Expected reasons %v, got %v", expectedReasons, result.Reasons)
	}
	if result.LedgerTransactionID != "INV-2026-001" || result.SuggestedAccountID != "1200" {
		t.Errorf("Expected candidate identity to be copied, got %+v", result)
	}
}

func TestExactMatcher_Escalation(t *testing.T) {
	registry := DefaultEntityRegistry().WithAccount("GB29 NWBK 6016 1331 9268 19", "Phygrid Limited", 19941830)
	em := NewExactMatcher(nil, registry)

	patterns := CompilePatterns([]models.Pattern{
		{ID: "1", Kind: models.PatternCounterparty, Value: "acme cloud", TargetType: models.TargetAccount, TargetID: "1200", Boost: d("0.15")},
		{ID: "2", Kind: models.PatternDescription, Value: "([", IsRegex: true, TargetType: models.TargetAccount, TargetID: "1200", Boost: d("0.15")},
		{ID: "3", Kind: models.PatternCounterparty, Value: "^Globex", IsRegex: true, TargetType: models.TargetAccount, TargetID: "6100", Boost: d("0.15")},
	})

	tests := []struct {
		name           string
		prepare        func(tx *models.Transaction)
		expectedType   models.MatchType
		expectedReason string
	}{
		{
			name: "reference number shared with transaction id",
			prepare: func(tx *models.Transaction) {
				tx.PaymentReference = "Payment 44817"
			},
			expectedType:   models.MatchExactAll,
			expectedReason: "reference_contains_tranid",
		},
		{
			name: "reference found in memo",
			prepare: func(tx *models.Transaction) {
				tx.PaymentReference = "po 7781"
			},
			expectedType:   models.MatchExactAll,
			expectedReason: "reference_contains_tranid",
		},
		{
			name: "known group account",
			prepare: func(tx *models.Transaction) {
				tx.CounterpartyAccount = "GB29NWBK60161331926819"
			},
			expectedType:   models.MatchExactAmountRef,
			expectedReason: "counterparty_iban_known",
		},
		{
			name: "learned pattern targeting the entry account",
			prepare: func(tx *models.Transaction) {
				tx.CounterpartyName = "ACME Cloud Services"
			},
			expectedType:   models.MatchExactAmountRef,
			expectedReason: "pattern_exact_match",
		},
		{
			name: "pattern targeting another account",
			prepare: func(tx *models.Transaction) {
				tx.CounterpartyName = "Globex Corporation"
			},
			expectedType: models.MatchExactAmountDate,
		},
		{
			name: "invalid regex never matches",
			prepare: func(tx *models.Transaction) {
				tx.Description = "(["
			},
			expectedType: models.MatchExactAmountDate,
		},
		{
			name:         "amount and date only",
			prepare:      func(tx *models.Transaction) {},
			expectedType: models.MatchExactAmountDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTestTransaction("TX-2", "250.00", day(2026, 3, 2))
			tt.prepare(tx)
			candidates := []models.LedgerEntry{
				newTestEntry("JE-44817", "250.00", day(2026, 3, 2), "Office supplies PO 7781"),
			}

			result := em.Match(tx, candidates, patterns)
			if result == nil {
				t.Fatal("Expected a match, got nil")
			}
			if result.MatchType != tt.expectedType {
				t.Errorf("Expected match type %s, got %s", tt.expectedType, result.MatchType)
			}
			if tt.expectedReason != "" {
				last := result.Reasons[len(result.Reasons)-1]
				if last != tt.expectedReason {
					t.Errorf("Expected last reason %s, got %s", tt.expectedReason, last)
				}
			} else if len(result.Reasons) != 2 {
				t.Errorf("Expected only gate reasons, got %v", result.Reasons)
			}
		})
	}
}

func TestExactMatcher_Gates(t *testing.T) {
	em := NewExactMatcher(nil, nil)

	tests := []struct {
		name        string
		txAmount    string
		entryAmount string
		entryDay    int
		expectMatch bool
	}{
		{"same amount same day", "100.00", "100.00", 10, true},
		{"opposite signs", "-100.00", "100.00", 10, true},
		{"one cent apart", "100.00", "100.01", 10, true},
		{"two cents apart", "100.00", "100.02", 10, false},
		{"one day apart", "100.00", "100.00", 11, true},
		{"two days apart", "100.00", "100.00", 12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTestTransaction("TX", tt.txAmount, day(2026, 5, 10))
			candidates := []models.LedgerEntry{newTestEntry("JE-1", tt.entryAmount, day(2026, 5, tt.entryDay), "")}

			result := em.Match(tx, candidates, nil)
			if tt.expectMatch && result == nil {
				t.Error("Expected a match, got nil")
			}
			if !tt.expectMatch && result != nil {
				t.Errorf("Expected no match, got %s", result.MatchType)
			}
		})
	}
}

func TestExactMatcher_FirstQualifyingCandidateWins(t *testing.T) {
	em := NewExactMatcher(nil, nil)

	tx := newTestTransaction("TX-3", "75.00", day(2026, 2, 1))
	tx.PaymentReference = "JE-900"

	candidates := []models.LedgerEntry{
		newTestEntry("JE-100", "80.00", day(2026, 2, 1), ""),
		newTestEntry("JE-200", "75.00", day(2026, 2, 1), ""),
		newTestEntry("JE-900", "75.00", day(2026, 2, 1), ""),
	}

	result := em.Match(tx, candidates, nil)
	if result == nil {
		t.Fatal("Expected a match, got nil")
	}
	if result.LedgerTransactionID != "JE-200" {
		t.Errorf("Expected first qualifying candidate JE-200, got %s", result.LedgerTransactionID)
	}
	if result.MatchType != models.MatchExactAmountDate {
		t.Errorf("Expected %s for the first candidate, got %s", models.MatchExactAmountDate, result.MatchType)
	}
}

func TestExactMatcher_NoCandidates(t *testing.T) {
	em := NewExactMatcher(nil, nil)
	tx := newTestTransaction("TX", "10.00", day(2026, 1, 1))

	if result := em.Match(tx, nil, nil); result != nil {
		t.Errorf("Expected nil for no candidates, got %+v", result)
	}
}

func BenchmarkExactMatcher(b *testing.B) {
	em := NewExactMatcher(nil, nil)
	tx := newTestTransaction("TX", "999.99", day(2026, 1, 15))
	tx.PaymentReference = "INV-2026-999"

	candidates := make([]models.LedgerEntry, 1000)
	for i := range candidates {
		candidates[i] = newTestEntry("JE", "10.00", day(2026, 1, 15), "")
	}
	candidates[len(candidates)-1] = newTestEntry("INV-2026-999", "999.99", day(2026, 1, 15), "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		em.Match(tx, candidates, nil)
	}
}
