package fixtures

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
)

func testGenerator(count int) *Generator {
	return &Generator{
		Entity:   matcher.Entity{ProfileID: 19941830, Name: "Phygrid Limited", SubsidiaryID: "3"},
		Count:    count,
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency: "EUR",
		Seed:     42,
	}
}

func TestGenerate(t *testing.T) {
	ds, err := testGenerator(8).Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ds.Transactions) != 8 {
		t.Errorf("Expected 8 transactions, got %d", len(ds.Transactions))
	}
	if len(ds.Ledger) != 6 {
		t.Errorf("Expected 6 ledger entries (two missing), got %d", len(ds.Ledger))
	}

	counts := make(map[Scenario]int)
	for _, s := range ds.Scenarios {
		counts[s]++
	}
	for _, s := range Scenarios {
		if counts[s] != 2 {
			t.Errorf("Expected 2 %s transactions, got %d", s, counts[s])
		}
	}

	again, _ := testGenerator(8).Generate()
	for i := range ds.Transactions {
		if !ds.Transactions[i].Amount.Equal(again.Transactions[i].Amount) {
			t.Fatalf("Expected the same seed to produce the same amounts, got %s and %s",
				ds.Transactions[i].Amount, again.Transactions[i].Amount)
		}
	}

	first, last := ds.Period()
	if first.After(last) {
		t.Errorf("Expected period start before end, got %v..%v", first, last)
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *Generator)
	}{
		{"zero count", func(g *Generator) { g.Count = 0 }},
		{"no entity", func(g *Generator) { g.Entity.Name = "" }},
		{"no subsidiary", func(g *Generator) { g.Entity.SubsidiaryID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenerator(4)
			tt.modify(g)
			if _, err := g.Generate(); err == nil {
				t.Error("Expected error, got none")
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	ds, err := testGenerator(4).Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := ds.WriteTransactionsCSV(&buf); err != nil {
		t.Fatalf("failed to write transactions: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV is not readable: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("Expected header plus 4 rows, got %d", len(records))
	}
	if records[1][9] != "VB-00001" {
		t.Errorf("Expected first reference VB-00001, got %s", records[1][9])
	}
}

// TestGeneratedDatasetReconciles runs the generated exports through the
// parsers and the pipeline and checks every transaction lands on its
// scenario's match type
func TestGeneratedDatasetReconciles(t *testing.T) {
	ctx := context.Background()
	ds, err := testGenerator(12).Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txPath, ledgerPath, err := ds.WriteFiles(t.TempDir())
	if err != nil {
		t.Fatalf("failed to write files: %v", err)
	}

	parser, err := parsers.NewTransactionParser(parsers.DefaultTransactionParserConfig())
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	transactions, stats, err := parser.ParseFile(ctx, txPath)
	if err != nil {
		t.Fatalf("failed to parse transactions: %v", err)
	}
	if stats.HasErrors() {
		t.Fatalf("Expected no row errors, got %v", stats.SampleErrors(3))
	}

	ledger, err := parsers.NewCSVLedgerProvider(ledgerPath, parsers.DefaultLedgerParserConfig())
	if err != nil {
		t.Fatalf("failed to create ledger provider: %v", err)
	}

	service, err := reconciler.NewService(reconciler.NewPipeline(reconciler.Components{}), ledger, nil, nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	first, last := ds.Period()
	result, err := service.Reconcile(ctx, reconciler.Request{
		EntityName:   "Phygrid Limited",
		SubsidiaryID: "3",
		Start:        first,
		End:          last.Add(24*time.Hour - time.Second),
		Transactions: transactions,
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if result.TransactionsProcessed != 12 {
		t.Errorf("Expected 12 transactions processed, got %d", result.TransactionsProcessed)
	}
	for _, o := range result.Outcomes {
		expected := ds.Scenarios[o.Transaction.ID].ExpectedMatch()
		if o.Result == nil {
			t.Errorf("%s: Expected %s, got error %s", o.Transaction.ID, expected, o.Err)
			continue
		}
		if o.Result.MatchType != expected {
			t.Errorf("%s: Expected %s, got %s", o.Transaction.ID, expected, o.Result.MatchType)
		}
	}
}
