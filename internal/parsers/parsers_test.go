package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

const testDataDir = "../../test/examples"

// Helper function to get test file path
func getTestFilePath(filename string) string {
	return filepath.Join(testDataDir, filename)
}

// Helper function to create temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if config.MaxErrors <= 0 {
		t.Errorf("Expected a positive error limit, got %d", config.MaxErrors)
	}
}

func TestColumnSet_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		field   string
		want    int
	}{
		{"canonical name", []string{"id", "date", "amount"}, FieldAmount, 2},
		{"alias", []string{"Reference Number", "Created On", "Value"}, FieldDate, 1},
		{"case and separators", []string{"TransferWise ID", "Transaction-Date", "AMOUNT"}, FieldID, 0},
		{"first alias wins", []string{"payer_name", "counterparty"}, FieldCounterpartyName, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := TransactionColumns().Resolve(tt.headers)
			got, ok := resolved[tt.field]
			if !ok {
				t.Fatalf("Expected %s to resolve, got %v", tt.field, resolved)
			}
			if got != tt.want {
				t.Errorf("Expected index %d, got %d", tt.want, got)
			}
		})
	}
}

func TestColumnSet_Missing(t *testing.T) {
	columns := TransactionColumns()
	missing := columns.Missing(columns.Resolve([]string{"id", "description"}))

	if strings.Join(missing, ",") != "date,amount" {
		t.Errorf("Expected date and amount missing, got %v", missing)
	}
}

func TestTransactionParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*TransactionParserConfig)
		wantErr bool
	}{
		{"default", func(*TransactionParserConfig) {}, false},
		{"extra alias", func(c *TransactionParserConfig) { c.ColumnAliases[FieldAmount] = []string{"Betrag"} }, false},
		{"unknown field", func(c *TransactionParserConfig) { c.ColumnAliases["balance"] = []string{"Saldo"} }, true},
		{"empty alias", func(c *TransactionParserConfig) { c.ColumnAliases[FieldAmount] = []string{" "} }, true},
		{"bad currency", func(c *TransactionParserConfig) { c.DefaultCurrency = "EURO" }, true},
		{"bad delimiter", func(c *TransactionParserConfig) { c.Parse.Delimiter = '"' }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTransactionParserConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransactionParser_ParseFile(t *testing.T) {
	parser, err := NewTransactionParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	transactions, stats, err := parser.ParseFile(context.Background(), getTestFilePath("bank_transactions.csv"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(transactions) != 5 || stats.RecordsValid != 5 || stats.HasErrors() {
		t.Fatalf("Expected 5 valid transactions, got %d (%s)", len(transactions), stats)
	}

	first := transactions[0]
	if first.ID != "TRANSFER-1001" || first.PaymentReference != "INV-2026-001" {
		t.Errorf("Unexpected first transaction: %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("-1500.00")) {
		t.Errorf("Expected amount -1500.00, got %s", first.Amount)
	}
	if first.ProfileID != 19941830 || first.Direction != models.DirectionDebit {
		t.Errorf("Expected profile 19941830 DEBIT, got %d %s", first.ProfileID, first.Direction)
	}

	fx := transactions[4]
	if !fx.IsCrossCurrency() || fx.FromCurrency != "SEK" {
		t.Errorf("Expected cross-currency SEK transaction, got %+v", fx)
	}
	if fx.ExchangeRate == nil || !fx.ExchangeRate.Equal(decimal.RequireFromString("0.0902")) {
		t.Errorf("Expected exchange rate 0.0902, got %v", fx.ExchangeRate)
	}

	card := transactions[3]
	if card.MerchantName != "Hetzner Online" || card.Kind != "CARD" {
		t.Errorf("Expected card merchant Hetzner Online, got %q %q", card.Kind, card.MerchantName)
	}
	if transactions[1].IsCrossCurrency() {
		t.Error("Expected same-currency transaction not to be cross-currency")
	}
}

func TestTransactionParser_RowErrors(t *testing.T) {
	content := `Reference Number,Created On,Value,Currency,Debit_Credit
TX-1,2026-01-05,-10.00,eur,
TX-2,not a date,5.00,EUR,
TX-3,2026-01-06,abc,EUR,
,2026-01-06,1.00,EUR,
TX-5,2026-01-07,2.00,EUR,SIDEWAYS

TX-6,2026-01-08,3.00,EUR,IN
`
	parser, _ := NewTransactionParser(nil)
	transactions, stats, err := parser.ParseFile(context.Background(), createTempCSVFile(t, content))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}
	if transactions[0].Currency != "EUR" || transactions[0].Direction != models.DirectionDebit {
		t.Errorf("Expected uppercased currency and derived DEBIT, got %s %s", transactions[0].Currency, transactions[0].Direction)
	}
	if transactions[1].Direction != models.DirectionCredit {
		t.Errorf("Expected IN to map to CREDIT, got %s", transactions[1].Direction)
	}

	wantCodes := []errors.ErrorCode{errors.CodeInvalidDate, errors.CodeInvalidAmount, errors.CodeMissingField, errors.CodeInvalidData}
	if stats.ErrorCount() != len(wantCodes) {
		t.Fatalf("Expected %d errors, got %v", len(wantCodes), stats.SampleErrors(0))
	}
	for i, rowErr := range stats.Errors() {
		if rowErr.Code != wantCodes[i] {
			t.Errorf("Error %d: expected code %s, got %s", i, wantCodes[i], rowErr.Code)
		}
	}
	if line := stats.Errors()[0].Context.Line; line != 3 {
		t.Errorf("Expected first error on line 3, got %d", line)
	}
	if stats.RecordsParsed != 6 {
		t.Errorf("Expected 6 records parsed with the empty row skipped, got %d", stats.RecordsParsed)
	}
}

func TestTransactionParser_MissingColumns(t *testing.T) {
	parser, _ := NewTransactionParser(nil)
	_, _, err := parser.ParseFile(context.Background(), createTempCSVFile(t, "id,description\nTX-1,hello\n"))

	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("Expected ReconcilerError, got %v", err)
	}
	if rerr.Code != errors.CodeMissingColumn {
		t.Errorf("Expected missing column code, got %s", rerr.Code)
	}
	if !strings.Contains(err.Error(), "date, amount") {
		t.Errorf("Expected missing columns named, got %q", err.Error())
	}
}

func TestTransactionParser_ErrorLimit(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.Parse.MaxErrors = 2
	parser, _ := NewTransactionParser(config)

	content := "id,date,amount,currency\nA,x,1,EUR\nB,x,1,EUR\nC,x,1,EUR\nD,2026-01-01,1,EUR\n"
	transactions, stats, err := parser.Parse(context.Background(), "limit.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !stats.Stopped || stats.ErrorCount() != 2 || len(transactions) != 0 {
		t.Errorf("Expected parsing to stop after 2 errors, got stopped=%v errors=%d transactions=%d",
			stats.Stopped, stats.ErrorCount(), len(transactions))
	}
}

func TestTransactionParser_Defaults(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.DefaultCurrency = "gbp"
	config.DefaultEntityName = "Fendops Limited"
	config.DefaultProfileID = 25587793
	config.ColumnAliases[FieldAmount] = []string{"Betrag"}
	parser, err := NewTransactionParser(config)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	_, _, err = parser.Parse(context.Background(), "defaults.csv",
		strings.NewReader("id;date;Betrag\nTX-1;2026-01-05;12.50\n"))
	if err == nil {
		t.Fatal("Expected the semicolon file to fail with a comma delimiter")
	}

	config.Parse.Delimiter = ';'
	parser, _ = NewTransactionParser(config)
	transactions, _, err := parser.Parse(context.Background(), "defaults.csv",
		strings.NewReader("id;date;Betrag\nTX-1;2026-01-05;12.50\n"))
	if err != nil || len(transactions) != 1 {
		t.Fatalf("Expected 1 transaction, got %d (%v)", len(transactions), err)
	}
	tx := transactions[0]
	if tx.Currency != "GBP" || tx.EntityName != "Fendops Limited" || tx.ProfileID != 25587793 {
		t.Errorf("Expected defaults applied, got %+v", tx)
	}
}

func TestGroupByEntity(t *testing.T) {
	txs := []*models.Transaction{
		{ID: "1", EntityName: "Phygrid Limited"},
		{ID: "2", EntityName: "Fendops Kft"},
		{ID: "3", EntityName: "Phygrid Limited"},
	}
	order, groups := GroupByEntity(txs)

	if strings.Join(order, "|") != "Phygrid Limited|Fendops Kft" {
		t.Errorf("Expected first-seen order, got %v", order)
	}
	if len(groups["Phygrid Limited"]) != 2 || groups["Phygrid Limited"][1].ID != "3" {
		t.Errorf("Expected Phygrid group [1 3], got %v", groups["Phygrid Limited"])
	}
}

func TestLedgerParser_ParseFile(t *testing.T) {
	tests := []struct {
		name              string
		includeReconciled bool
		want              int
	}{
		{"unreconciled only", false, 5},
		{"include reconciled", true, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultLedgerParserConfig()
			config.IncludeReconciled = tt.includeReconciled
			parser, err := NewLedgerParser(config)
			if err != nil {
				t.Fatalf("Failed to create parser: %v", err)
			}

			entries, stats, err := parser.ParseFile(context.Background(), getTestFilePath("ledger_entries.csv"))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("Expected %d entries, got %d", tt.want, len(entries))
			}
			if stats.RecordsValid != 6 {
				t.Errorf("Expected 6 valid records, got %d", stats.RecordsValid)
			}

			first := entries[0]
			if first.TransactionID != "INV-2026-001" || first.LineID != 1 || first.AccountID != "2000" || first.EntityID != "3" {
				t.Errorf("Unexpected first entry: %+v", first)
			}
		})
	}
}

func TestLedgerParser_RowErrors(t *testing.T) {
	content := "tranid,trandate,net_amount,line\nJE-1,2026-01-05,10.00,one\nJE-2,2026-01-05,10.00,2\n"
	parser, _ := NewLedgerParser(nil)

	entries, stats, err := parser.Parse(context.Background(), "gl.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entries) != 1 || entries[0].LineID != 2 {
		t.Errorf("Expected only JE-2 line 2, got %+v", entries)
	}
	if stats.ErrorCount() != 1 || stats.Errors()[0].Context.Column != FieldLineID {
		t.Errorf("Expected a line id error, got %v", stats.SampleErrors(0))
	}
}

func TestCSVLedgerProvider(t *testing.T) {
	provider, err := NewCSVLedgerProvider(getTestFilePath("ledger_entries.csv"), nil)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	jan := func(day int) time.Time { return time.Date(2026, time.January, day, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		subsidiary string
		start, end time.Time
		want       []string
	}{
		{"whole month", "3", jan(1), jan(31), []string{"INV-2026-001", "JE-800", "JE-250", "VB-1000"}},
		{"window by calendar day", "3", jan(12), jan(15), []string{"INV-2026-001", "JE-800", "JE-250"}},
		{"other subsidiary", "7", jan(1), jan(31), []string{"JE-KFT"}},
		{"unknown subsidiary", "99", jan(1), jan(31), nil},
		{"any subsidiary", "", jan(11), jan(11), []string{"JE-KFT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := provider.LedgerEntries(context.Background(), tt.subsidiary, tt.start, tt.end)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.TransactionID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCSVLedgerProvider_MissingFile(t *testing.T) {
	provider, _ := NewCSVLedgerProvider(filepath.Join(t.TempDir(), "missing.csv"), nil)
	_, err := provider.LedgerEntries(context.Background(), "3", time.Time{}, time.Time{})

	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeFileNotFound {
		t.Errorf("Expected file not found, got %v", err)
	}
}

func TestOFXParser_ParseFile(t *testing.T) {
	parser := NewOFXParser("Phygrid Limited", 19941830)
	transactions, err := parser.ParseFile(context.Background(), getTestFilePath("statement.ofx"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}

	debit := transactions[0]
	if debit.ID != "OFX-1001" || debit.PaymentReference != "INV-2026-001" {
		t.Errorf("Unexpected debit: %+v", debit)
	}
	if debit.Direction != models.DirectionDebit || !debit.Amount.Equal(decimal.RequireFromString("-1500")) {
		t.Errorf("Expected DEBIT -1500, got %s %s", debit.Direction, debit.Amount)
	}
	if debit.Currency != "EUR" || debit.EntityName != "Phygrid Limited" || debit.ProfileID != 19941830 {
		t.Errorf("Expected statement currency and entity stamped, got %+v", debit)
	}
	if !debit.Date.Equal(time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected posting date 2026-01-15 12:00 UTC, got %s", debit.Date)
	}

	credit := transactions[1]
	if credit.Direction != models.DirectionCredit || credit.CounterpartyName != "Fendops Kft" {
		t.Errorf("Expected CREDIT from Fendops Kft, got %s %q", credit.Direction, credit.CounterpartyName)
	}
}

func TestOFXParser_Invalid(t *testing.T) {
	_, err := NewOFXParser("Phygrid Limited", 0).Parse(context.Background(), strings.NewReader("not ofx at all"))

	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryParse {
		t.Errorf("Expected parse error, got %v", err)
	}
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n<SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := preprocessOFX(in)
	if out != "<SEVERITY>INFO</SEVERITY>\n<CODE>\n" {
		t.Errorf("Unexpected preprocessing result %q", out)
	}
}
