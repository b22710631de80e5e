package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMatchingConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *MatchingConfig)
		expectError bool
	}{
		{"defaults", func(c *MatchingConfig) {}, false},
		{"negative amount tolerance", func(c *MatchingConfig) { c.ExactAmountTolerance = decimal.NewFromInt(-1) }, true},
		{"negative date tolerance", func(c *MatchingConfig) { c.ExactDateToleranceDays = -1 }, true},
		{"fuzzy tighter than exact", func(c *MatchingConfig) { c.FuzzyDateToleranceDays = 0 }, true},
		{"fx variance above 100", func(c *MatchingConfig) { c.FXVariancePercent = decimal.NewFromInt(150) }, true},
		{"zero similarity threshold", func(c *MatchingConfig) { c.NameSimilarityThreshold = 0 }, true},
		{"negative penalty", func(c *MatchingConfig) { c.CrossCurrencyPenalty = decimal.NewFromFloat(-0.05) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMatchingConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMatchingConfigClone(t *testing.T) {
	original := DefaultMatchingConfig()
	clone := original.Clone()
	clone.FuzzyDateToleranceDays = 9

	if original.FuzzyDateToleranceDays != 5 {
		t.Errorf("Expected original to keep 5 days, got %d", original.FuzzyDateToleranceDays)
	}
}

func TestLLMConfigValidate(t *testing.T) {
	config := DefaultLLMConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Unexpected error for defaults: %v", err)
	}
	if config.MaxCandidates != 5 || config.Timeout != 30*time.Second {
		t.Errorf("Unexpected defaults: %+v", config)
	}

	config.MaxCandidates = 0
	if err := config.Validate(); err == nil {
		t.Error("Expected error for zero candidates")
	}

	config = DefaultLLMConfig()
	config.Timeout = 0
	if err := config.Validate(); err == nil {
		t.Error("Expected error for zero timeout")
	}
}
