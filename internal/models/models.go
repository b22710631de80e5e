// Package models defines the records exchanged by the reconciliation
// pipeline: bank transactions, ledger entry candidates, learned patterns and
// match results.
//
// Transactions and ledger entries are treated as immutable once loaded. The
// matchers only read them.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of the bank movement
type Direction string

const (
	// DirectionDebit is money leaving the account
	DirectionDebit Direction = "DEBIT"
	// DirectionCredit is money arriving in the account
	DirectionCredit Direction = "CREDIT"
)

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// Transaction is one bank movement awaiting reconciliation
type Transaction struct {
	ID         string          `json:"id"`
	ProfileID  int64           `json:"profile_id"`
	EntityName string          `json:"entity_name"`
	Direction  Direction       `json:"direction"`
	Kind       string          `json:"transaction_type"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`

	Description         string `json:"description,omitempty"`
	PaymentReference    string `json:"payment_reference,omitempty"`
	CounterpartyName    string `json:"counterparty_name,omitempty"`
	CounterpartyAccount string `json:"counterparty_account,omitempty"`

	// Set for cross-currency movements only.
	FromAmount   *decimal.Decimal `json:"from_amount,omitempty"`
	FromCurrency string           `json:"from_currency,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`

	MerchantName     string `json:"merchant_name,omitempty"`
	MerchantCategory string `json:"merchant_category,omitempty"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid transaction direction: %q", t.Direction)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if strings.TrimSpace(t.Currency) == "" {
		return fmt.Errorf("transaction currency cannot be empty")
	}
	return nil
}

// IsCrossCurrency reports whether the bank converted the amount from another currency
func (t *Transaction) IsCrossCurrency() bool {
	return t.FromCurrency != "" || t.FromAmount != nil
}

// String returns a short representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Amount: %s %s, Date: %s}",
		t.ID, t.Amount.StringFixed(2), t.Currency, t.Date.Format("2006-01-02"))
}

// LedgerEntry is a general ledger line that a transaction may match
type LedgerEntry struct {
	TransactionID string          `json:"transaction_id"`
	LineID        int             `json:"line_id"`
	Type          string          `json:"transaction_type"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AccountID     string          `json:"account_id"`
	AccountName   string          `json:"account_name"`
	EntityID      string          `json:"entity_id"`
	EntityName    string          `json:"entity_name"`
	Memo          string          `json:"memo,omitempty"`
}

// Validate performs basic validation on the LedgerEntry
func (e *LedgerEntry) Validate() error {
	if strings.TrimSpace(e.TransactionID) == "" {
		return fmt.Errorf("ledger transaction ID cannot be empty")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("ledger entry date cannot be zero")
	}
	return nil
}

// DaysBetween returns the absolute number of calendar days between a and b.
// Each value is reduced to its own calendar date first, so 23:59 and 00:01 on
// the following day are one day apart.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// ParseDecimalFromString parses an amount, tolerating thousands separators
// and a leading currency symbol
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// ParseDirection parses a debit/credit marker
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBIT", "D", "DR":
		return DirectionDebit, nil
	case "CREDIT", "C", "CR":
		return DirectionCredit, nil
	default:
		return "", fmt.Errorf("invalid direction '%s': must be DEBIT or CREDIT", s)
	}
}

// ParseTimeWithFormats attempts to parse a date using the formats seen in
// bank and ledger exports
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006",
		"2006/01/02",
		"02.01.2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}
