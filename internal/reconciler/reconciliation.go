package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
)

// DefaultPeriod is the lookback used when a request gives no start date
const DefaultPeriod = 30 * 24 * time.Hour

// Config holds the batch settings of the reconciliation service
type Config struct {
	// Workers bounds how many transactions are processed at once
	Workers int `mapstructure:"workers"`

	// ProgressInterval is how often batch progress is logged
	ProgressInterval time.Duration `mapstructure:"progress_interval"`

	// Preprocessing normalises and filters the input before matching
	Preprocessing *PreprocessingConfig `mapstructure:"preprocessing"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Workers:          4,
		ProgressInterval: 5 * time.Second,
		Preprocessing:    DefaultPreprocessingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// SubmissionSink receives every matched result of a batch
type SubmissionSink interface {
	Submit(ctx context.Context, tx *models.Transaction, result *models.MatchResult) (string, error)
}

// ProgressFunc is called once per finished transaction with the running
// count and the batch size. It may be called from several workers at once.
type ProgressFunc func(done, total int)

// Batch is one entity's transactions for a period together with the shared
// matching snapshot
type Batch struct {
	EntityName   string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Transactions []*models.Transaction
	Snapshot     *Snapshot
	Progress     ProgressFunc
}

// Outcome is the pipeline's decision for one transaction of a batch
type Outcome struct {
	Transaction  *models.Transaction `json:"transaction"`
	Result       *models.MatchResult `json:"result,omitempty"`
	SuggestionID string              `json:"suggestion_id,omitempty"`
	Err          string              `json:"error,omitempty"`
}

// RunResult summarises a batch run
type RunResult struct {
	RunID       string    `json:"run_id"`
	EntityName  string    `json:"entity_name"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TransactionsProcessed int `json:"transactions_processed"`
	ExactMatches          int `json:"exact_matches"`
	FuzzyMatches          int `json:"fuzzy_matches"`
	LLMMatches            int `json:"llm_matches"`
	PatternMatches        int `json:"pattern_matches"`
	Unmatched             int `json:"unmatched"`
	AutoApproved          int `json:"auto_approved"`
	SubmittedForReview    int `json:"submitted_for_review"`

	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`

	// Outcomes are in the order the transactions were given
	Outcomes []Outcome `json:"outcomes"`
}

// MatchRate returns the share of processed transactions that matched a ledger entry
func (r *RunResult) MatchRate() float64 {
	if r.TransactionsProcessed == 0 {
		return 0
	}
	return float64(r.TransactionsProcessed-r.Unmatched) / float64(r.TransactionsProcessed)
}

// record updates the counters for one finalised result
func (r *RunResult) record(result *models.MatchResult) {
	switch {
	case result.MatchType.IsExact():
		r.ExactMatches++
	case result.MatchType.IsFuzzy():
		r.FuzzyMatches++
	case result.MatchType.IsLLM():
		r.LLMMatches++
	case result.MatchType == models.MatchPattern:
		r.PatternMatches++
	default:
		r.Unmatched++
	}

	switch result.Action {
	case models.ActionAutoApprove:
		r.AutoApproved++
	case models.ActionSuggest, models.ActionReview:
		r.SubmittedForReview++
	}
}

// Request asks the Service to reconcile one entity for a period
type Request struct {
	EntityName   string
	SubsidiaryID string
	Start        time.Time
	End          time.Time
	Transactions []*models.Transaction
	Progress     ProgressFunc
}

// Normalize fills the default period: the end defaults to now and the start
// to DefaultPeriod before the end
func (r *Request) Normalize(now time.Time) {
	if r.End.IsZero() {
		r.End = now
	}
	if r.Start.IsZero() {
		r.Start = r.End.Add(-DefaultPeriod)
	}
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if strings.TrimSpace(r.EntityName) == "" {
		return fmt.Errorf("entity name is required")
	}
	if strings.TrimSpace(r.SubsidiaryID) == "" {
		return fmt.Errorf("subsidiary id is required")
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("period start and end are required")
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("start date must be before end date")
	}
	return nil
}
