// Package reporter renders reconciliation run results.
//
// Supported output formats:
//   - Console: styled summary and per-transaction decisions for a terminal
//   - JSON: the full run results for programmatic consumption
//   - CSV: one row per transaction decision for spreadsheets
//   - XLSX: a workbook with a summary sheet and a decisions sheet
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(results, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format cannot be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatched   bool `json:"include_matched"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeReasons   bool `json:"include_reasons"`

	// Console formatting options
	UseColors    bool `json:"use_colors"`
	MaxListItems int  `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// SortByConfidence lists the least certain decisions first
	SortByConfidence bool `json:"sort_by_confidence"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeMatched:   true,
		IncludeUnmatched: true,
		IncludeReasons:   false,
		UseColors:        true,
		MaxListItems:     50,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report covering one or more entity runs
func (rg *ReportGenerator) GenerateReport(results []*reconciler.RunResult, writer io.Writer) error {
	if len(results) == 0 {
		return fmt.Errorf("no reconciliation results to report")
	}
	for i, result := range results {
		if result == nil {
			return fmt.Errorf("reconciliation result %d is nil", i)
		}
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(results, writer)
	case FormatJSON:
		return rg.generateJSONReport(results, writer)
	case FormatCSV:
		return rg.generateCSVReport(results, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(results, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// Summary aggregates the counters of several runs
type Summary struct {
	Entities              int           `json:"entities"`
	TransactionsProcessed int           `json:"transactions_processed"`
	ExactMatches          int           `json:"exact_matches"`
	FuzzyMatches          int           `json:"fuzzy_matches"`
	LLMMatches            int           `json:"llm_matches"`
	PatternMatches        int           `json:"pattern_matches"`
	Unmatched             int           `json:"unmatched"`
	AutoApproved          int           `json:"auto_approved"`
	SubmittedForReview    int           `json:"submitted_for_review"`
	Intercompany          int           `json:"intercompany"`
	Errors                int           `json:"errors"`
	MatchRate             float64       `json:"match_rate"`
	Duration              time.Duration `json:"duration"`
}

// Summarize aggregates the counters of results
func Summarize(results []*reconciler.RunResult) Summary {
	s := Summary{Entities: len(results)}
	for _, r := range results {
		s.TransactionsProcessed += r.TransactionsProcessed
		s.ExactMatches += r.ExactMatches
		s.FuzzyMatches += r.FuzzyMatches
		s.LLMMatches += r.LLMMatches
		s.PatternMatches += r.PatternMatches
		s.Unmatched += r.Unmatched
		s.AutoApproved += r.AutoApproved
		s.SubmittedForReview += r.SubmittedForReview
		s.Errors += len(r.Errors)
		s.Duration += r.Duration
		for _, o := range r.Outcomes {
			if o.Result != nil && o.Result.IsIntercompany {
				s.Intercompany++
			}
		}
	}
	if s.TransactionsProcessed > 0 {
		s.MatchRate = float64(s.TransactionsProcessed-s.Unmatched) / float64(s.TransactionsProcessed)
	}
	return s
}

// row is one transaction decision flattened for tabular output
type row struct {
	Entity      string
	Transaction *models.Transaction
	Result      *models.MatchResult
	Suggestion  string
	Err         string
}

func (r row) matchType() string {
	if r.Result == nil {
		return "error"
	}
	return string(r.Result.MatchType)
}

func (r row) confidence() string {
	if r.Result == nil {
		return ""
	}
	return r.Result.Confidence.StringFixed(2)
}

func (r row) action() string {
	if r.Result == nil {
		return ""
	}
	return string(r.Result.Action)
}

// rows flattens outcomes honouring the matched/unmatched filters
func (rg *ReportGenerator) rows(results []*reconciler.RunResult) []row {
	var out []row
	for _, r := range results {
		for _, o := range r.Outcomes {
			unmatched := o.Result == nil || o.Result.MatchType == models.MatchUnmatched
			if unmatched && !rg.config.IncludeUnmatched {
				continue
			}
			if !unmatched && !rg.config.IncludeMatched {
				continue
			}
			out = append(out, row{
				Entity:      r.EntityName,
				Transaction: o.Transaction,
				Result:      o.Result,
				Suggestion:  o.SuggestionID,
				Err:         o.Err,
			})
		}
	}
	if rg.config.SortByConfidence {
		sort.SliceStable(out, func(i, j int) bool {
			return confidenceOf(out[i]) < confidenceOf(out[j])
		})
	}
	return out
}

func confidenceOf(r row) float64 {
	if r.Result == nil {
		return -1
	}
	f, _ := r.Result.Confidence.Float64()
	return f
}

// generateJSONReport writes the summary and the full run results
func (rg *ReportGenerator) generateJSONReport(results []*reconciler.RunResult, writer io.Writer) error {
	output := map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"summary":      Summarize(results),
		"runs":         results,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

var csvHeaders = []string{
	"Entity", "Transaction_ID", "Date", "Amount", "Currency", "Direction",
	"Counterparty", "Reference", "Match_Type", "Confidence", "Action",
	"Ledger_Transaction_ID", "Ledger_Line_ID", "Suggested_Account",
	"Intercompany", "Counterparty_Entity", "Suggestion_ID", "Reasons", "Error",
}

// record renders one row as the CSV/XLSX column values
func (rg *ReportGenerator) record(r row) []string {
	tx := r.Transaction
	rec := []string{
		r.Entity, tx.ID, tx.Date.Format("2006-01-02"), tx.Amount.StringFixed(2), tx.Currency,
		string(tx.Direction), tx.CounterpartyName, tx.PaymentReference,
		r.matchType(), r.confidence(), r.action(),
		"", "", "", "", "", r.Suggestion, "", r.Err,
	}
	if res := r.Result; res != nil {
		rec[11] = res.LedgerTransactionID
		if res.HasLedgerMatch() {
			rec[12] = fmt.Sprintf("%d", res.LedgerLineID)
		}
		rec[13] = strings.TrimSpace(res.SuggestedAccountID + " " + res.SuggestedAccountName)
		rec[14] = fmt.Sprintf("%t", res.IsIntercompany)
		rec[15] = res.CounterpartyEntity
		if rg.config.IncludeReasons {
			rec[17] = strings.Join(res.Reasons, "; ")
		}
	}
	return rec
}

// generateCSVReport writes one row per transaction decision
func (rg *ReportGenerator) generateCSVReport(results []*reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, r := range rg.rows(results) {
		if err := csvWriter.Write(rg.record(r)); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", r.Transaction.ID, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
