// Package matcher implements the matching tiers of the reconciliation
// pipeline and the confidence scorer that rates their output.
//
// Tiers, in the order the orchestrator runs them:
//   - IntercompanyDetector: is the counterparty another group entity?
//   - ExactMatcher: first candidate with exact amount, ±1 day and corroborating evidence
//   - FuzzyMatcher: best candidate within FX/date tolerances, rated by name and reference similarity
//   - LLMMatcher: a reasoning service picks among a bounded candidate list
//
// The ConfidenceScorer holds the base score, adjustment and action tables.
//
// All matchers are safe for concurrent use: they hold only immutable
// configuration and never modify the transactions, candidates or patterns
// they are given.
//
// Example usage:
//
//	registry := matcher.DefaultEntityRegistry()
//	exact := matcher.NewExactMatcher(nil, registry)
//	patterns := matcher.CompilePatterns(activePatterns)
//
//	if result := exact.Match(tx, ledgerEntries, patterns); result != nil {
//		fmt.Println(result.MatchType, result.Confidence)
//	}
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tolerances used by the exact and fuzzy tiers.
// The defaults are the production values; tests and the CLI may tighten them.
type MatchingConfig struct {
	// ExactAmountTolerance is the largest absolute difference between absolute amounts
	ExactAmountTolerance decimal.Decimal `json:"exact_amount_tolerance" mapstructure:"exact_amount_tolerance"`

	// ExactDateToleranceDays is the largest calendar-day gap for the exact tier
	ExactDateToleranceDays int `json:"exact_date_tolerance_days" mapstructure:"exact_date_tolerance_days"`

	// FuzzyAmountTolerance is the absolute tolerance for same-currency fuzzy matches
	FuzzyAmountTolerance decimal.Decimal `json:"fuzzy_amount_tolerance" mapstructure:"fuzzy_amount_tolerance"`

	// FXVariancePercent is the percentage tolerance for cross-currency fuzzy matches
	FXVariancePercent decimal.Decimal `json:"fx_variance_percent" mapstructure:"fx_variance_percent"`

	// FuzzyDateToleranceDays is the largest calendar-day gap for the fuzzy tier
	FuzzyDateToleranceDays int `json:"fuzzy_date_tolerance_days" mapstructure:"fuzzy_date_tolerance_days"`

	// NameSimilarityThreshold is the Jaccard score that promotes a fuzzy match to fuzzy_high
	NameSimilarityThreshold float64 `json:"name_similarity_threshold" mapstructure:"name_similarity_threshold"`

	// CrossCurrencyPenalty is subtracted from fuzzy confidence for converted amounts
	CrossCurrencyPenalty decimal.Decimal `json:"cross_currency_penalty" mapstructure:"cross_currency_penalty"`
}

// DefaultMatchingConfig returns the production tolerances
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ExactAmountTolerance:    decimal.RequireFromString("0.01"),
		ExactDateToleranceDays:  1,
		FuzzyAmountTolerance:    decimal.RequireFromString("0.01"),
		FXVariancePercent:       decimal.RequireFromString("2.0"),
		FuzzyDateToleranceDays:  5,
		NameSimilarityThreshold: 0.85,
		CrossCurrencyPenalty:    decimal.RequireFromString("0.05"),
	}
}

// Validate checks that the configuration values are usable
func (c *MatchingConfig) Validate() error {
	if c.ExactAmountTolerance.IsNegative() || c.FuzzyAmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerances cannot be negative")
	}
	if c.ExactDateToleranceDays < 0 || c.FuzzyDateToleranceDays < 0 {
		return fmt.Errorf("date tolerances cannot be negative")
	}
	if c.FuzzyDateToleranceDays < c.ExactDateToleranceDays {
		return fmt.Errorf("fuzzy date tolerance (%d) must not be tighter than exact (%d)",
			c.FuzzyDateToleranceDays, c.ExactDateToleranceDays)
	}
	if c.FXVariancePercent.IsNegative() || c.FXVariancePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("fx variance percent must be between 0 and 100, got %s", c.FXVariancePercent)
	}
	if c.NameSimilarityThreshold <= 0 || c.NameSimilarityThreshold > 1 {
		return fmt.Errorf("name similarity threshold must be in (0, 1], got %.2f", c.NameSimilarityThreshold)
	}
	if c.CrossCurrencyPenalty.IsNegative() {
		return fmt.Errorf("cross currency penalty cannot be negative")
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}

// LLMConfig controls the inference tier
type LLMConfig struct {
	// Enabled turns the tier on; a matcher without credentials still declines
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// MaxCandidates bounds the candidate list described to the service
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates"`

	// Timeout bounds a single decision call
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// ConfidentThreshold separates llm_confident from llm_uncertain
	ConfidentThreshold decimal.Decimal `json:"confident_threshold" mapstructure:"confident_threshold"`
}

// DefaultLLMConfig returns the production inference settings
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Enabled:            true,
		MaxCandidates:      5,
		Timeout:            30 * time.Second,
		ConfidentThreshold: decimal.RequireFromString("0.80"),
	}
}

// Validate checks that the configuration values are usable
func (c *LLMConfig) Validate() error {
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
