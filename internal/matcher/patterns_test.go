package matcher

import (
	"testing"

	"bank-reconciliation-service/internal/models"
)

func TestPatternSet_MatchesAccount(t *testing.T) {
	set := CompilePatterns([]models.Pattern{
		{ID: "lit", Kind: models.PatternCounterparty, Value: "Amazon Web", TargetType: models.TargetAccount, TargetID: "6200"},
		{ID: "re", Kind: models.PatternReference, Value: `INV[-/]\d{4}[-/]\d+`, IsRegex: true, TargetType: models.TargetAccount, TargetID: "1100"},
		{ID: "bad", Kind: models.PatternDescription, Value: "(unclosed", IsRegex: true, TargetType: models.TargetAccount, TargetID: "6300"},
		{ID: "untargeted", Kind: models.PatternDescription, Value: "rent", TargetType: models.TargetVendor},
	})

	tests := []struct {
		name      string
		tx        models.Transaction
		accountID string
		expected  bool
	}{
		{"literal is case-insensitive", models.Transaction{CounterpartyName: "AMAZON WEB SERVICES EMEA"}, "6200", true},
		{"literal wrong account", models.Transaction{CounterpartyName: "Amazon Web Services"}, "6300", false},
		{"regex on reference", models.Transaction{PaymentReference: "inv/2026/17"}, "1100", true},
		{"regex wrong field", models.Transaction{Description: "INV-2026-17"}, "1100", false},
		{"invalid regex never matches", models.Transaction{Description: "(unclosed"}, "6300", false},
		{"pattern without target", models.Transaction{Description: "Office rent"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.MatchesAccount(&tt.tx, tt.accountID); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	if set.Len() != 4 {
		t.Errorf("Expected invalid patterns to stay in the set, got %d", set.Len())
	}
}

func TestPatternSet_Nil(t *testing.T) {
	var set *PatternSet
	if set.Len() != 0 || set.Patterns() != nil {
		t.Error("Expected empty nil set")
	}
	if set.MatchesAccount(&models.Transaction{CounterpartyName: "x"}, "1") {
		t.Error("Expected nil set to match nothing")
	}
}

func TestPatternSet_UnknownKindNeverMatches(t *testing.T) {
	set := CompilePatterns([]models.Pattern{
		{ID: "any", Kind: "memo", Value: ".*", IsRegex: true, TargetType: models.TargetAccount, TargetID: "6200"},
		{ID: "empty", Kind: "iban", Value: "", TargetType: models.TargetAccount, TargetID: "6300"},
	})
	tx := &models.Transaction{CounterpartyName: "Anyone", Description: "Anything"}

	for _, account := range []string{"6200", "6300"} {
		if set.MatchesAccount(tx, account) {
			t.Errorf("Expected pattern of unknown kind targeting %s not to match", account)
		}
	}
}
