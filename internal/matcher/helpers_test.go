package matcher

import (
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 12, 0, 0, 0, time.UTC)
}

func newTestTransaction(id, amount string, date time.Time) *models.Transaction {
	return &models.Transaction{
		ID:         id,
		ProfileID:  19941830,
		EntityName: "Phygrid Limited",
		Direction:  models.DirectionDebit,
		Kind:       "TRANSFER",
		Date:       date,
		Amount:     d(amount),
		Currency:   "EUR",
	}
}

func newTestEntry(tranID, amount string, date time.Time, memo string) models.LedgerEntry {
	return models.LedgerEntry{
		TransactionID: tranID,
		LineID:        1,
		Type:          "VendPymt",
		Date:          date,
		Amount:        d(amount),
		Currency:      "EUR",
		AccountID:     "1200",
		AccountName:   "1200 Bank - EUR",
		EntityID:      "3",
		EntityName:    "Phygrid Limited",
		Memo:          memo,
	}
}

func ledgerIDs(entries []models.LedgerEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TransactionID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
