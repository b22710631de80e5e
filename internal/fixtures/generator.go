// Package fixtures generates synthetic bank and ledger exports whose
// expected reconciliation outcome is known in advance.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Scenario is the kind of pairing generated for one transaction
type Scenario string

const (
	// ScenarioReference pairs the transaction with a same-day entry named in its reference
	ScenarioReference Scenario = "reference"
	// ScenarioAmountDate pairs by amount with a one-day booking lag
	ScenarioAmountDate Scenario = "amount_date"
	// ScenarioDrift pairs by amount and counterparty with a three-day lag
	ScenarioDrift Scenario = "drift"
	// ScenarioMissing has no ledger entry
	ScenarioMissing Scenario = "missing"
)

// Scenarios lists the scenarios in generation order
var Scenarios = []Scenario{ScenarioReference, ScenarioAmountDate, ScenarioDrift, ScenarioMissing}

// ExpectedMatch is the match type the pipeline reaches for a scenario
// without the inference tier
func (s Scenario) ExpectedMatch() models.MatchType {
	switch s {
	case ScenarioReference:
		return models.MatchExactAll
	case ScenarioAmountDate:
		return models.MatchExactAmountDate
	case ScenarioDrift:
		return models.MatchFuzzyHigh
	}
	return models.MatchUnmatched
}

var counterparties = []string{
	"Acme Supplies GmbH", "Nordic Tools AB", "Hetzner Online", "Baltic Freight OU",
	"Lumen Office Services", "Contoso Cleaning Ltd", "Kestrel Legal LLP", "Orbit Telecom SA",
}

var accounts = []struct{ id, name string }{
	{"2000", "2000 Accounts Payable"},
	{"6100", "6100 Rent"},
	{"6400", "6400 Hosting"},
	{"6500", "6500 Software"},
}

// Generator produces a Dataset for one entity. The same seed always yields
// the same dataset.
type Generator struct {
	Entity   matcher.Entity
	Count    int
	Start    time.Time
	Currency string
	Seed     int64
}

// Dataset is a generated bank export with its ledger counterpart
type Dataset struct {
	Transactions []*models.Transaction
	Ledger       []models.LedgerEntry
	Scenarios    map[string]Scenario
}

// Generate builds the dataset. Transactions cycle through Scenarios and get
// amounts far enough apart that no transaction can match another's entry.
func (g *Generator) Generate() (*Dataset, error) {
	if g.Count <= 0 {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "count", g.Count, nil)
	}
	if g.Entity.Name == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "entity", nil, nil)
	}
	if g.Entity.SubsidiaryID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "subsidiary_id", nil, nil)
	}
	currency := g.Currency
	if currency == "" {
		currency = "EUR"
	}

	rng := rand.New(rand.NewSource(g.Seed))
	ds := &Dataset{Scenarios: make(map[string]Scenario, g.Count)}

	for i := 0; i < g.Count; i++ {
		scenario := Scenarios[i%len(Scenarios)]
		cents := int64(i+1)*10000 + rng.Int63n(9900)
		amount := decimal.New(-cents, -2)
		date := g.Start.AddDate(0, 0, 3+i%20)
		counterparty := counterparties[rng.Intn(len(counterparties))]
		account := accounts[rng.Intn(len(accounts))]
		ledgerID := fmt.Sprintf("VB-%05d", i+1)

		tx := &models.Transaction{
			ID:               fmt.Sprintf("TRANSFER-%05d", i+1),
			ProfileID:        g.Entity.ProfileID,
			EntityName:       g.Entity.Name,
			Direction:        models.DirectionDebit,
			Kind:             "TRANSFER",
			Date:             date,
			Amount:           amount,
			Currency:         currency,
			Description:      "Payment to " + counterparty,
			CounterpartyName: counterparty,
		}

		entry := models.LedgerEntry{
			TransactionID: ledgerID,
			LineID:        1,
			Type:          "VendBill",
			Date:          date,
			Amount:        amount,
			Currency:      currency,
			AccountID:     account.id,
			AccountName:   account.name,
			EntityID:      g.Entity.SubsidiaryID,
			EntityName:    g.Entity.Name,
		}

		switch scenario {
		case ScenarioReference:
			tx.PaymentReference = ledgerID
			entry.Memo = "Invoice " + ledgerID
		case ScenarioAmountDate:
			entry.Date = date.AddDate(0, 0, -1)
			entry.Memo = "Bill " + ledgerID
		case ScenarioDrift:
			entry.Date = date.AddDate(0, 0, -3)
			entry.Memo = counterparty
		}

		ds.Transactions = append(ds.Transactions, tx)
		ds.Scenarios[tx.ID] = scenario
		if scenario != ScenarioMissing {
			ds.Ledger = append(ds.Ledger, entry)
		}
	}

	logger.GetGlobalLogger().WithComponent("fixtures").WithFields(logger.Fields{
		"entity":         g.Entity.Name,
		"transactions":   len(ds.Transactions),
		"ledger_entries": len(ds.Ledger),
		"seed":           g.Seed,
	}).Debug("Generated dataset")
	return ds, nil
}

// Period returns the first and last day covered by the transactions and
// their ledger entries
func (ds *Dataset) Period() (time.Time, time.Time) {
	var first, last time.Time
	visit := func(t time.Time) {
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	for _, tx := range ds.Transactions {
		visit(tx.Date)
	}
	for _, e := range ds.Ledger {
		visit(e.Date)
	}
	return first, last
}

// TransactionHeaders are the columns written by WriteTransactionsCSV
var TransactionHeaders = []string{
	"id", "date", "amount", "currency", "entity_name", "profile_id", "direction",
	"transaction_type", "description", "payment_reference", "counterparty_name",
}

// LedgerHeaders are the columns written by WriteLedgerCSV
var LedgerHeaders = []string{
	"transaction_id", "line_id", "type", "date", "amount", "currency", "account_id",
	"account_name", "entity_id", "entity_name", "memo", "is_reconciled",
}

// WriteTransactionsCSV writes the bank export
func (ds *Dataset) WriteTransactionsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TransactionHeaders); err != nil {
		return err
	}
	for _, tx := range ds.Transactions {
		record := []string{
			tx.ID,
			tx.Date.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			tx.Currency,
			tx.EntityName,
			strconv.FormatInt(tx.ProfileID, 10),
			string(tx.Direction),
			tx.Kind,
			tx.Description,
			tx.PaymentReference,
			tx.CounterpartyName,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedgerCSV writes the ledger export
func (ds *Dataset) WriteLedgerCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeaders); err != nil {
		return err
	}
	for _, e := range ds.Ledger {
		record := []string{
			e.TransactionID,
			strconv.Itoa(e.LineID),
			e.Type,
			e.Date.Format("2006-01-02"),
			e.Amount.StringFixed(2),
			e.Currency,
			e.AccountID,
			e.AccountName,
			e.EntityID,
			e.EntityName,
			e.Memo,
			"F",
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFiles writes bank_transactions.csv and ledger_entries.csv into dir
// and returns their paths
func (ds *Dataset) WriteFiles(dir string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.FileError(errors.CodeFilePermission, dir, err)
	}

	txPath := filepath.Join(dir, "bank_transactions.csv")
	if err := writeFile(txPath, ds.WriteTransactionsCSV); err != nil {
		return "", "", err
	}
	ledgerPath := filepath.Join(dir, "ledger_entries.csv")
	if err := writeFile(ledgerPath, ds.WriteLedgerCSV); err != nil {
		return "", "", err
	}
	return txPath, ledgerPath, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := f.Close(); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
