package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseContext locates a row problem inside an input file
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a problem with a single input row. Most row errors only drop
// the row; unrecoverable ones stop the load.
type RowError struct {
	*ReconcilerError
	Context     *ParseContext `json:"context"`
	Recoverable bool          `json:"recoverable"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with the row location appended
func (e *RowError) Error() string {
	msg := e.ReconcilerError.Error()
	if e.Context == nil {
		return msg
	}
	location := "at " + filepath.Base(e.Context.File)
	if e.Context.Line > 0 {
		location += fmt.Sprintf(":%d", e.Context.Line)
	}
	if e.Context.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Context.Column)
	}
	return msg + " " + location
}

// Unwrap exposes the categorised error to errors.As
func (e *RowError) Unwrap() error {
	return e.ReconcilerError
}

// Detailed returns a multi-line description for terminal output
func (e *RowError) Detailed() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}
	if e.Context != nil {
		if e.Context.File != "" {
			lines = append(lines, fmt.Sprintf("  → File: %s", e.Context.File))
		}
		if e.Context.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Context.Line))
		}
		if e.Context.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Context.Column))
		}
		if e.Context.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Context.Value))
		}
		if e.Context.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Context.Expected))
		}
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples: "+strings.Join(e.Examples, ", "))
	}
	return strings.Join(lines, "\n")
}

// NewRowError creates a recoverable row error
func NewRowError(code ErrorCode, context *ParseContext, message string, cause error) *RowError {
	base := build(cause, CategoryParse, code, message, "")
	if context != nil {
		base.WithContext("file", context.File).
			WithContext("line", context.Line).
			WithContext("column", context.Column).
			WithContext("value", context.Value)
	}
	return &RowError{
		ReconcilerError: base,
		Context:         context,
		Recoverable:     true,
	}
}

// WithExamples adds example values to help fix the row
func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the RowError
func (e *RowError) WithSuggestion(suggestion string) *RowError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// InvalidAmountError reports an amount cell that is not a decimal number
func InvalidAmountError(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidAmount, &ParseContext{
		File: file, Line: line, Column: column, Value: value,
		Expected: "decimal number",
	}, "invalid amount format", nil).
		WithExamples("12.34", "-1250.50", "1,500.00").
		WithSuggestion("Use a plain decimal amount, negative for money leaving the account")
}

// InvalidDateError reports a date cell in none of the accepted layouts
func InvalidDateError(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidDate, &ParseContext{
		File: file, Line: line, Column: column, Value: value,
		Expected: "date in YYYY-MM-DD format",
	}, "invalid date format", nil).
		WithExamples("2026-01-15", "2026-01-15T10:30:00Z", "15/01/2026").
		WithSuggestion("Use YYYY-MM-DD or an RFC 3339 timestamp")
}

// InvalidDirectionError reports a debit/credit marker that cannot be read
func InvalidDirectionError(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidData, &ParseContext{
		File: file, Line: line, Column: column, Value: value,
		Expected: "DEBIT or CREDIT",
	}, "invalid transaction direction", nil).
		WithExamples("DEBIT", "CREDIT", "D", "C").
		WithSuggestion("Use DEBIT/CREDIT or leave the column out to derive it from the amount sign")
}

// EmptyValueError reports a required cell left empty
func EmptyValueError(file string, line int, column string) *RowError {
	return NewRowError(CodeMissingField, &ParseContext{
		File: file, Line: line, Column: column,
		Expected: "non-empty value",
	}, "required field is empty", nil).
		WithSuggestion("Provide a value for this required field")
}

// MissingColumnError reports required columns absent from the header. It is
// never recoverable.
func MissingColumnError(file string, missing []string) *RowError {
	err := NewRowError(CodeMissingColumn, &ParseContext{
		File: file, Line: 1,
		Expected: "columns: " + strings.Join(missing, ", "),
	}, "missing required columns: "+strings.Join(missing, ", "), nil).
		WithSuggestion("Add the missing columns to the header row or rename an existing column to a supported alias")
	err.Recoverable = false
	return err
}

// ParseErrorCollector collects row errors up to a limit
type ParseErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewParseErrorCollector creates a collector. maxErrors <= 0 means unlimited.
func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether loading should continue
func (c *ParseErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns the collected errors in the order they were added
func (c *ParseErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary groups the collected errors by category and code
func (c *ParseErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

// FormatRowErrors renders row errors grouped by file, detailing the first
// few of each
func FormatRowErrors(errs []*RowError, maxDetailed int) string {
	if len(errs) == 0 {
		return "No parse errors"
	}
	if len(errs) == 1 {
		return errs[0].Detailed()
	}

	var files []string
	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Context != nil && err.Context.File != "" {
			file = filepath.Base(err.Context.File)
		}
		if _, ok := byFile[file]; !ok {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], err)
	}

	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs))}
	for _, file := range files {
		fileErrs := byFile[file]
		lines = append(lines, "", fmt.Sprintf("File: %s (%d errors)", file, len(fileErrs)))
		for i, err := range fileErrs {
			if maxDetailed > 0 && i == maxDetailed {
				lines = append(lines, fmt.Sprintf("... and %d more errors in this file", len(fileErrs)-maxDetailed))
				break
			}
			lines = append(lines, err.Detailed())
		}
	}
	return strings.Join(lines, "\n")
}
