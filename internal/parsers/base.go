// Package parsers loads bank transactions and ledger entries from exported
// files.
//
// Bank and ledger exports rarely agree on column names, so every logical field
// is resolved through a list of accepted header aliases. Rows that fail to
// parse are collected with their location and skipped; only problems with the
// file itself (missing file, bad encoding, missing required columns) stop a
// load.
//
// Supported inputs:
//   - Bank transaction CSV (TransactionParser)
//   - Ledger entry CSV (LedgerParser)
//   - OFX/QFX bank statements (OFXParser)
//
// Example usage:
//
//	parser, err := NewTransactionParser(DefaultTransactionParserConfig())
//	transactions, stats, err := parser.ParseFile(ctx, "wise-eur.csv")
//
//	ledger, err := NewCSVLedgerProvider("gl-entries.csv", nil)
//	entries, err := ledger.LedgerEntries(ctx, "3", start, end)
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool

	// MaxErrors stops a load once this many rows have failed. Zero means no limit.
	MaxErrors int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
		MaxErrors:        1000,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent(component)
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"max_errors":        config.MaxErrors,
	}).Debug("Created parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	// Columns maps a logical field to its column index
	Columns map[string]int
	ctx     context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:    file,
		Columns: make(map[string]int),
		ctx:     ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// Has reports whether the header contained a column for field
func (pc *ParseContext) Has(field string) bool {
	_, ok := pc.Columns[field]
	return ok
}

// OpenFile opens a CSV file and returns a csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := openInput(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		return nil, nil, err
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	return file, bp.NewReader(file), nil
}

// NewReader wraps r in a csv.Reader configured for this parser
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// openInput opens a file and classifies the failure
func openInput(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err == nil {
		return file, nil
	}
	switch {
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
	default:
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
}

// validateEncoding checks if the first lines of the file are valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				filePath,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// ReadHeaders reads the header row and resolves every column in the set to
// its index. A missing required column is returned as an unrecoverable
// *errors.RowError.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns ColumnSet) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = cleanHeaders(headers)
	parseCtx.Columns = columns.Resolve(parseCtx.Headers)

	bp.logger.WithFields(logger.Fields{
		"headers":  parseCtx.Headers,
		"resolved": len(parseCtx.Columns),
	}).Debug("Read CSV headers")

	if missing := columns.Missing(parseCtx.Columns); len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_columns":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required columns are missing")
		return errors.MissingColumnError(parseCtx.File, missing)
	}
	return nil
}

// cleanHeaders trims whitespace and a UTF-8 byte order mark
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// ReadRecord reads the next non-empty record. io.EOF marks the end of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.StartLine
			} else {
				parseCtx.LineNumber++
			}
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			return nil, errors.NewRowError(errors.CodeInvalidFormat, &errors.ParseContext{
				File: parseCtx.File,
				Line: parseCtx.LineNumber,
			}, "malformed CSV row", err)
		}

		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.NewRowError(errors.CodeInvalidData, &errors.ParseContext{
						File:   parseCtx.File,
						Line:   parseCtx.LineNumber,
						Column: fmt.Sprintf("field_%d", i),
						Value:  field[:50] + "...",
					}, "field size limit exceeded", nil).
						WithSuggestion(fmt.Sprintf("Reduce field size to under %d bytes", bp.config.MaxFieldSize))
				}
			}
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Field returns the trimmed value of a logical field, or "" when the file has
// no such column or the row is short
func (bp *BaseParser) Field(record []string, parseCtx *ParseContext, field string) string {
	index, ok := parseCtx.Columns[field]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// RequiredField is Field for columns that must carry a value
func (bp *BaseParser) RequiredField(record []string, parseCtx *ParseContext, field string) (string, *errors.RowError) {
	value := bp.Field(record, parseCtx, field)
	if value == "" {
		return "", errors.EmptyValueError(parseCtx.File, parseCtx.LineNumber, field)
	}
	return value, nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	// Stopped is set when the error limit or an unrecoverable error ended the load early
	Stopped bool

	collector *errors.ParseErrorCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(maxErrors int) *ParseStats {
	return &ParseStats{collector: errors.NewParseErrorCollector(maxErrors)}
}

// AddError records a row error and reports whether parsing should continue
func (ps *ParseStats) AddError(err *errors.RowError) bool {
	if !ps.collector.Add(err) {
		ps.Stopped = true
		return false
	}
	return true
}

// ErrorCount returns the number of rows that failed
func (ps *ParseStats) ErrorCount() int {
	return len(ps.collector.Errors())
}

// Errors returns the collected row errors
func (ps *ParseStats) Errors() []*errors.RowError {
	return ps.collector.Errors()
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.collector.HasErrors()
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount())
}

// SampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	errs := ps.collector.Errors()
	limit := len(errs)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for _, err := range errs[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// asRowError keeps row errors as they are and wraps anything else
func asRowError(err error, parseCtx *ParseContext) *errors.RowError {
	if rowErr, ok := err.(*errors.RowError); ok {
		return rowErr
	}
	return errors.NewRowError(errors.CodeInvalidData, &errors.ParseContext{
		File: parseCtx.File,
		Line: parseCtx.LineNumber,
	}, "invalid record", err)
}

// rowFunc converts one record. A returned row error drops the record.
type rowFunc func(record []string, parseCtx *ParseContext) *errors.RowError

// parseFile drives the read loop shared by the CSV parsers
func (bp *BaseParser) parseFile(ctx context.Context, filePath string, columns ColumnSet, row rowFunc) (*ParseStats, error) {
	file, reader, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return bp.parse(ctx, filePath, reader, columns, row)
}

func (bp *BaseParser) parse(ctx context.Context, name string, reader *csv.Reader, columns ColumnSet, row rowFunc) (*ParseStats, error) {
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(bp.config.MaxErrors)

	if err := bp.ReadHeaders(reader, parseCtx, columns); err != nil {
		return stats, err
	}

	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErr, ok := err.(*errors.RowError)
			if !ok {
				stats.TotalLines = parseCtx.LineNumber
				return stats, err
			}
			if !stats.AddError(rowErr) {
				break
			}
			continue
		}

		stats.RecordsParsed++
		if rowErr := row(record, parseCtx); rowErr != nil {
			if !stats.AddError(rowErr) {
				break
			}
			continue
		}
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	log := bp.logger.WithFields(logger.Fields{
		"file":    name,
		"records": stats.RecordsParsed,
		"valid":   stats.RecordsValid,
		"errors":  stats.ErrorCount(),
	})
	if stats.Stopped {
		log.Warn("Parsing stopped early")
	} else if stats.HasErrors() {
		log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Parsed file with row errors")
	} else {
		log.Debug("Parsed file")
	}
	return stats, nil
}
