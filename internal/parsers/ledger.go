package parsers

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// LedgerParser parses general ledger entry CSV exports
type LedgerParser struct {
	*BaseParser
	config  *LedgerParserConfig
	columns ColumnSet
}

// NewLedgerParser creates a new LedgerParser with the given configuration
func NewLedgerParser(config *LedgerParserConfig) (*LedgerParser, error) {
	if config == nil {
		config = DefaultLedgerParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger_parser", nil, err)
	}
	return &LedgerParser{
		BaseParser: NewBaseParser(config.Parse, "ledger_parser"),
		config:     config,
		columns:    config.Columns(),
	}, nil
}

// ParseFile parses a ledger entry CSV file
func (lp *LedgerParser) ParseFile(ctx context.Context, filePath string) ([]models.LedgerEntry, *ParseStats, error) {
	var entries []models.LedgerEntry
	stats, err := lp.parseFile(ctx, filePath, lp.columns, lp.collect(&entries))
	return entries, stats, err
}

// Parse parses ledger entries from r. name is used in error locations.
func (lp *LedgerParser) Parse(ctx context.Context, name string, r io.Reader) ([]models.LedgerEntry, *ParseStats, error) {
	var entries []models.LedgerEntry
	stats, err := lp.parse(ctx, name, lp.NewReader(r), lp.columns, lp.collect(&entries))
	return entries, stats, err
}

func (lp *LedgerParser) collect(out *[]models.LedgerEntry) rowFunc {
	return func(record []string, parseCtx *ParseContext) *errors.RowError {
		entry, reconciled, rowErr := lp.parseEntry(record, parseCtx)
		if rowErr != nil {
			return rowErr
		}
		if err := entry.Validate(); err != nil {
			return asRowError(err, parseCtx)
		}
		if reconciled && !lp.config.IncludeReconciled {
			return nil
		}
		*out = append(*out, entry)
		return nil
	}
}

// parseEntry creates a LedgerEntry from a CSV record and reports whether the
// export marks it reconciled already
func (lp *LedgerParser) parseEntry(record []string, parseCtx *ParseContext) (models.LedgerEntry, bool, *errors.RowError) {
	file, line := parseCtx.File, parseCtx.LineNumber
	var entry models.LedgerEntry

	tranID, rowErr := lp.RequiredField(record, parseCtx, FieldTransactionID)
	if rowErr != nil {
		return entry, false, rowErr
	}

	dateStr, rowErr := lp.RequiredField(record, parseCtx, FieldDate)
	if rowErr != nil {
		return entry, false, rowErr
	}
	date, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return entry, false, errors.InvalidDateError(file, line, FieldDate, dateStr)
	}

	amountStr, rowErr := lp.RequiredField(record, parseCtx, FieldAmount)
	if rowErr != nil {
		return entry, false, rowErr
	}
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return entry, false, errors.InvalidAmountError(file, line, FieldAmount, amountStr)
	}

	lineID := 0
	if raw := lp.Field(record, parseCtx, FieldLineID); raw != "" {
		if lineID, err = strconv.Atoi(raw); err != nil {
			return entry, false, errors.NewRowError(errors.CodeInvalidData, &errors.ParseContext{
				File: file, Line: line, Column: FieldLineID, Value: raw, Expected: "integer line number",
			}, "invalid line id", err)
		}
	}

	currency := strings.ToUpper(lp.Field(record, parseCtx, FieldCurrency))
	if currency == "" {
		currency = strings.ToUpper(lp.config.DefaultCurrency)
	}

	entry = models.LedgerEntry{
		TransactionID: tranID,
		LineID:        lineID,
		Type:          lp.Field(record, parseCtx, FieldType),
		Date:          date,
		Amount:        amount,
		Currency:      currency,
		AccountID:     lp.Field(record, parseCtx, FieldAccountID),
		AccountName:   lp.Field(record, parseCtx, FieldAccountName),
		EntityID:      lp.Field(record, parseCtx, FieldEntityID),
		EntityName:    lp.Field(record, parseCtx, FieldEntityName),
		Memo:          lp.Field(record, parseCtx, FieldMemo),
	}
	return entry, parseFlag(lp.Field(record, parseCtx, FieldReconciled)), nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y", "x":
		return true
	default:
		return false
	}
}

// CSVLedgerProvider serves ledger entries from a CSV export. The file is read
// once and filtered per request by subsidiary and date window.
type CSVLedgerProvider struct {
	path   string
	parser *LedgerParser
	logger logger.Logger

	once    sync.Once
	entries []models.LedgerEntry
	err     error
}

// NewCSVLedgerProvider creates a provider over the export at path
func NewCSVLedgerProvider(path string, config *LedgerParserConfig) (*CSVLedgerProvider, error) {
	parser, err := NewLedgerParser(config)
	if err != nil {
		return nil, err
	}
	return &CSVLedgerProvider{
		path:   path,
		parser: parser,
		logger: logger.GetGlobalLogger().WithComponent("csv_ledger"),
	}, nil
}

// LedgerEntries returns the entries of subsidiaryID dated within [start, end]
// by calendar date. An empty subsidiaryID matches every entry.
func (p *CSVLedgerProvider) LedgerEntries(ctx context.Context, subsidiaryID string, start, end time.Time) ([]models.LedgerEntry, error) {
	p.once.Do(func() {
		var stats *ParseStats
		p.entries, stats, p.err = p.parser.ParseFile(ctx, p.path)
		if p.err == nil && stats.Stopped {
			p.err = errors.New(errors.CategoryParse, errors.CodeInvalidData, "ledger export has too many invalid rows").
				WithContext("file", p.path).
				WithContext("errors", stats.ErrorCount())
		}
	})
	if p.err != nil {
		return nil, p.err
	}

	startDay, endDay := start.Format("2006-01-02"), end.Format("2006-01-02")
	var matched []models.LedgerEntry
	for _, entry := range p.entries {
		if subsidiaryID != "" && entry.EntityID != subsidiaryID {
			continue
		}
		day := entry.Date.Format("2006-01-02")
		if (!start.IsZero() && day < startDay) || (!end.IsZero() && day > endDay) {
			continue
		}
		matched = append(matched, entry)
	}

	p.logger.WithFields(logger.Fields{
		"subsidiary": subsidiaryID,
		"entries":    len(matched),
		"loaded":     len(p.entries),
	}).Debug("Served ledger entries")
	return matched, nil
}
