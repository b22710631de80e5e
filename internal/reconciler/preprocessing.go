package reconciler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
)

// DataPreprocessor normalises loaded transactions and ledger entries before
// they are matched
type DataPreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	// NormalizeTimezone relabels every date with DefaultTimezone, keeping its
	// calendar date and wall clock
	NormalizeTimezone bool           `mapstructure:"normalize_timezone"`
	DefaultTimezone   *time.Location `mapstructure:"-"`

	// TrimWhitespace trims text fields
	TrimWhitespace bool `mapstructure:"trim_whitespace"`

	// RemoveDuplicates drops repeated transaction ids and ledger lines
	RemoveDuplicates bool `mapstructure:"remove_duplicates"`

	// SkipInvalid drops records that fail validation instead of failing the batch
	SkipInvalid bool `mapstructure:"skip_invalid"`
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		NormalizeTimezone: true,
		DefaultTimezone:   time.UTC,
		TrimWhitespace:    true,
		RemoveDuplicates:  true,
		SkipInvalid:       true,
	}
}

// PreprocessingStats contains statistics about preprocessing operations
type PreprocessingStats struct {
	TotalRecords     int `json:"total_records"`
	RecordsRemoved   int `json:"records_removed"`
	OutOfPeriod      int `json:"out_of_period"`
	Duplicates       int `json:"duplicates"`
	ValidationErrors int `json:"validation_errors"`
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{config: config}
}

// PreprocessTransactions returns normalised copies of the transactions dated
// within [start, end], ordered by date. Inputs are never modified. Validation
// failures are returned as errors unless SkipInvalid is set.
func (dp *DataPreprocessor) PreprocessTransactions(transactions []*models.Transaction, start, end time.Time) ([]*models.Transaction, *PreprocessingStats, error) {
	stats := &PreprocessingStats{TotalRecords: len(transactions)}
	seen := make(map[string]struct{}, len(transactions))
	processed := make([]*models.Transaction, 0, len(transactions))
	var problems []string

	for i, tx := range transactions {
		if tx == nil {
			stats.RecordsRemoved++
			continue
		}
		copied := dp.normalizeTransaction(tx)

		if err := copied.Validate(); err != nil {
			stats.ValidationErrors++
			stats.RecordsRemoved++
			problems = append(problems, fmt.Sprintf("transaction %d (%s): %v", i, copied.ID, err))
			continue
		}
		if !withinPeriod(copied.Date, start, end) {
			stats.OutOfPeriod++
			stats.RecordsRemoved++
			continue
		}
		if dp.config.RemoveDuplicates {
			if _, dup := seen[copied.ID]; dup {
				stats.Duplicates++
				stats.RecordsRemoved++
				continue
			}
			seen[copied.ID] = struct{}{}
		}
		processed = append(processed, copied)
	}

	sort.SliceStable(processed, func(i, j int) bool {
		return processed[i].Date.Before(processed[j].Date)
	})

	if len(problems) > 0 && !dp.config.SkipInvalid {
		return processed, stats, fmt.Errorf("preprocessing errors: %s", strings.Join(problems, "; "))
	}
	return processed, stats, nil
}

// PreprocessLedgerEntries returns normalised copies of the ledger entries,
// keeping load order
func (dp *DataPreprocessor) PreprocessLedgerEntries(entries []models.LedgerEntry) ([]models.LedgerEntry, *PreprocessingStats, error) {
	stats := &PreprocessingStats{TotalRecords: len(entries)}
	seen := make(map[string]struct{}, len(entries))
	processed := make([]models.LedgerEntry, 0, len(entries))
	var problems []string

	for i, entry := range entries {
		entry.TransactionID = dp.normalizeString(entry.TransactionID)
		entry.AccountID = dp.normalizeString(entry.AccountID)
		entry.AccountName = dp.normalizeString(entry.AccountName)
		entry.Memo = dp.normalizeString(entry.Memo)
		entry.Currency = strings.ToUpper(dp.normalizeString(entry.Currency))
		entry.Date = dp.normalizeDateTime(entry.Date)

		if err := entry.Validate(); err != nil {
			stats.ValidationErrors++
			stats.RecordsRemoved++
			problems = append(problems, fmt.Sprintf("ledger entry %d (%s): %v", i, entry.TransactionID, err))
			continue
		}
		if dp.config.RemoveDuplicates {
			key := fmt.Sprintf("%s_%d", entry.TransactionID, entry.LineID)
			if _, dup := seen[key]; dup {
				stats.Duplicates++
				stats.RecordsRemoved++
				continue
			}
			seen[key] = struct{}{}
		}
		processed = append(processed, entry)
	}

	if len(problems) > 0 && !dp.config.SkipInvalid {
		return processed, stats, fmt.Errorf("preprocessing errors: %s", strings.Join(problems, "; "))
	}
	return processed, stats, nil
}

func (dp *DataPreprocessor) normalizeTransaction(tx *models.Transaction) *models.Transaction {
	copied := *tx
	copied.ID = dp.normalizeString(tx.ID)
	copied.EntityName = dp.normalizeString(tx.EntityName)
	copied.Currency = strings.ToUpper(dp.normalizeString(tx.Currency))
	copied.Description = dp.normalizeString(tx.Description)
	copied.PaymentReference = dp.normalizeString(tx.PaymentReference)
	copied.CounterpartyName = dp.normalizeString(tx.CounterpartyName)
	copied.CounterpartyAccount = dp.normalizeString(tx.CounterpartyAccount)
	copied.MerchantName = dp.normalizeString(tx.MerchantName)
	copied.FromCurrency = strings.ToUpper(dp.normalizeString(tx.FromCurrency))
	copied.Date = dp.normalizeDateTime(tx.Date)
	return &copied
}

// normalizeString applies string normalization rules
func (dp *DataPreprocessor) normalizeString(s string) string {
	if dp.config.TrimWhitespace {
		return strings.TrimSpace(s)
	}
	return s
}

// normalizeDateTime moves t into the default timezone without converting
// it, so a booking shortly after local midnight keeps its calendar day
func (dp *DataPreprocessor) normalizeDateTime(t time.Time) time.Time {
	if dp.config.NormalizeTimezone && dp.config.DefaultTimezone != nil {
		y, m, d := t.Date()
		hh, mm, ss := t.Clock()
		return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), dp.config.DefaultTimezone)
	}
	return t
}

// withinPeriod compares calendar dates so a transaction late on the end day
// still belongs to the period
func withinPeriod(date, start, end time.Time) bool {
	d := date.Format("2006-01-02")
	if !start.IsZero() && d < start.Format("2006-01-02") {
		return false
	}
	if !end.IsZero() && d > end.Format("2006-01-02") {
		return false
	}
	return true
}
