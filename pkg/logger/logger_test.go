package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"production", *ProductionConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFieldsSurviveChaining(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: DebugLevel, Format: JSONFormat, Output: StdoutOutput}, &buf)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	log.WithComponent("exact_matcher").
		WithFields(Fields{"transaction_id": "tx-1"}).
		WithError(errors.New("boom")).
		Warn("degraded")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "exact_matcher" {
		t.Errorf("Expected component field, got %v", entry["component"])
	}
	if entry["transaction_id"] != "tx-1" {
		t.Errorf("Expected transaction_id field, got %v", entry["transaction_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["level"] != "warning" {
		t.Errorf("Expected warning level, got %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: WarnLevel, Format: TextFormat, Output: StdoutOutput}, &buf)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message should be written")
	}
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(&Config{Level: InfoLevel, Format: TextFormat, Output: StdoutOutput}, &buf)

	tracker := NewProgressTracker(ProgressConfig{Operation: "match", Total: 4, Logger: log, LogInterval: time.Hour})
	tracker.Increment(false)
	tracker.Increment(true)
	tracker.Increment(false)

	final := tracker.Complete()
	if final.Current != 3 || final.Failed != 1 {
		t.Errorf("Expected 3 processed and 1 failed, got %d and %d", final.Current, final.Failed)
	}
	if final.Percentage != 75 {
		t.Errorf("Expected 75%%, got %.1f", final.Percentage)
	}
	if !strings.Contains(buf.String(), "Operation completed") {
		t.Error("expected completion log line")
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(&Config{Level: InfoLevel, Format: TextFormat, Output: StdoutOutput}, &buf)

	want := errors.New("load failed")
	if got := TimedOperation("load ledger", log, func() error { return want }); got != want {
		t.Errorf("Expected error to be returned unchanged, got %v", got)
	}
	if !strings.Contains(buf.String(), "Operation failed") {
		t.Error("expected failure to be logged")
	}
}
