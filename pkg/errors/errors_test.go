package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
		expectText string
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
			expectText: "file not found: no such file",
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
			expectText: "invalid format",
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
			expectText: "invalid config: missing field",
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeQueryFailed,
			message:    "query failed",
			expectCode: 7,
			expectText: "query failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.expectText {
				t.Errorf("expected error string %q, got %q", tt.expectText, err.Error())
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("expected error chain to contain %v", tt.cause)
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected stack trace to be captured")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "nothing") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "nothing") != nil {
		t.Error("expected WrapIfNeeded(nil) to return nil")
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      *ReconcilerError
		category ErrorCategory
		contains string
		ctxKey   string
	}{
		{"file", FileError(CodeFileNotFound, "/tmp/tx.csv", nil), CategoryFile, "/tmp/tx.csv", "file_path"},
		{"parse", ParseError(CodeInvalidData, "tx.csv", 4, "amount", "abc", nil), CategoryParse, "line 4", "column"},
		{"validation", ValidationError(CodeMissingField, "entity", "", nil), CategoryValidation, "entity", "field"},
		{"configuration", ConfigurationError(CodeMissingConfig, "database", nil, nil), CategoryConfiguration, "database", "setting"},
		{"reconciliation", ReconciliationError(CodeLedgerFetch, "subsidiary 3", cause), CategoryReconciliation, "boom", "operation"},
		{"network", NetworkError(CodeTimeout, "api.anthropic.com", cause), CategoryNetwork, "timeout", "endpoint"},
		{"storage", StorageError(CodeMigrationFailed, "up", cause), CategoryStorage, "migration", "operation"},
		{"internal", InternalError(CodePanic, "process tx-1", cause), CategoryInternal, "panic", "operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, tt.err.Category)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("expected %q to contain %q", tt.err.Error(), tt.contains)
			}
			if tt.err.Suggestion == "" {
				t.Error("expected a suggestion")
			}
			if _, ok := tt.err.Context[tt.ctxKey]; !ok {
				t.Errorf("expected context key %q", tt.ctxKey)
			}
		})
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryParse, CodeInvalidData, "a"),
		New(CategoryParse, CodeInvalidData, "b"),
		New(CategoryNetwork, CodeTimeout, "c"),
		New(CategoryFile, CodeFileNotFound, "d"),
		New(CategoryFile, CodeFileNotFound, "e"),
		New(CategoryFile, CodeFileNotFound, "f"),
	}

	summary := NewErrorSummary(errs)
	if summary.Total != 6 {
		t.Errorf("Expected total 6, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFile] != 3 {
		t.Errorf("Expected 3 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if len(summary.SampleErrors) != 5 {
		t.Errorf("Expected 5 sample errors, got %d", len(summary.SampleErrors))
	}
	if summary.ByCategory[CategoryStorage] != 0 {
		t.Errorf("Expected no storage errors, got %d", summary.ByCategory[CategoryStorage])
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("Expected exit code 6, got %d", summary.GetExitCode())
	}
	expected := "6 errors occurred (file: 3, network: 1, parse: 2)"
	if summary.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, summary.Error())
	}
}

func TestEmptyAndSingleErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" || empty.GetExitCode() != 0 {
		t.Errorf("unexpected empty summary: %q exit %d", empty.Error(), empty.GetExitCode())
	}

	single := NewErrorSummary([]*ReconcilerError{New(CategoryValidation, CodeMissingField, "only one")})
	if single.Error() != "only one" {
		t.Errorf("Expected single error message, got %q", single.Error())
	}
}

func TestAsReconcilerError(t *testing.T) {
	inner := New(CategoryNetwork, CodeTimeout, "slow")
	wrapped := fmt.Errorf("outer: %w", inner)

	got, ok := AsReconcilerError(wrapped)
	if !ok || got != inner {
		t.Fatalf("expected to extract inner ReconcilerError")
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("plain error should not convert")
	}

	if WrapIfNeeded(wrapped, CategoryInternal, CodeUnexpectedError, "x") != inner {
		t.Error("WrapIfNeeded should return the existing ReconcilerError")
	}
	plain := WrapIfNeeded(errors.New("plain"), CategoryInternal, CodeUnexpectedError, "x")
	if plain.Category != CategoryInternal {
		t.Errorf("expected internal category, got %s", plain.Category)
	}
}

func TestFromPanic(t *testing.T) {
	fromString := FromPanic("process tx-9", "index out of range")
	if fromString.Code != CodePanic {
		t.Errorf("expected panic code, got %s", fromString.Code)
	}
	if !strings.Contains(fromString.Error(), "index out of range") {
		t.Errorf("expected panic value in message, got %q", fromString.Error())
	}

	cause := errors.New("nil map")
	fromErr := FromPanic("process tx-9", cause)
	if !errors.Is(fromErr, cause) {
		t.Error("expected panic error to be wrapped")
	}
}
