package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

// Suggestion is a stored match awaiting review
type Suggestion struct {
	ID                   string           `json:"id"`
	TransactionID        string           `json:"transaction_id"`
	ProfileID            int64            `json:"profile_id"`
	EntityName           string           `json:"entity_name"`
	Direction            models.Direction `json:"direction"`
	TransactionType      string           `json:"transaction_type"`
	TransactionDate      time.Time        `json:"transaction_date"`
	Amount               decimal.Decimal  `json:"amount"`
	Currency             string           `json:"currency"`
	Description          string           `json:"description,omitempty"`
	CounterpartyName     string           `json:"counterparty_name,omitempty"`
	CounterpartyAccount  string           `json:"counterparty_account,omitempty"`
	PaymentReference     string           `json:"payment_reference,omitempty"`
	MerchantName         string           `json:"merchant_name,omitempty"`
	MerchantCategory     string           `json:"merchant_category,omitempty"`
	LedgerTransactionID  string           `json:"ledger_transaction_id"`
	LedgerLineID         int              `json:"ledger_line_id"`
	SuggestedAccountID   string           `json:"suggested_account_id"`
	SuggestedAccountName string           `json:"suggested_account_name"`
	MatchType            models.MatchType `json:"match_type"`
	Confidence           decimal.Decimal  `json:"confidence"`
	Action               models.Action    `json:"action"`
	Reasons              []string         `json:"reasons"`
	Explanation          string           `json:"explanation,omitempty"`
	IsIntercompany       bool             `json:"is_intercompany"`
	CounterpartyEntity   string           `json:"counterparty_entity,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Transaction rebuilds the bank transaction the suggestion was made for
func (sg *Suggestion) Transaction() *models.Transaction {
	return &models.Transaction{
		ID:                  sg.TransactionID,
		ProfileID:           sg.ProfileID,
		EntityName:          sg.EntityName,
		Direction:           sg.Direction,
		Kind:                sg.TransactionType,
		Date:                sg.TransactionDate,
		Amount:              sg.Amount,
		Currency:            sg.Currency,
		Description:         sg.Description,
		PaymentReference:    sg.PaymentReference,
		CounterpartyName:    sg.CounterpartyName,
		CounterpartyAccount: sg.CounterpartyAccount,
		MerchantName:        sg.MerchantName,
		MerchantCategory:    sg.MerchantCategory,
	}
}

// Submit records the pipeline's decision for tx and returns the suggestion
// id. Resubmitting a transaction replaces its earlier suggestion and keeps the id.
func (s *Store) Submit(ctx context.Context, tx *models.Transaction, result *models.MatchResult) (string, error) {
	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return "", errors.InternalError(errors.CodeUnexpectedError, "encode reasons", err)
	}
	now := s.timestamp()

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO suggestions (id, transaction_id, entity_name, transaction_date, amount, currency,
		                         counterparty_name, payment_reference, ledger_transaction_id,
		                         ledger_line_id, suggested_account_id, suggested_account_name,
		                         match_type, confidence, action, reasons, explanation,
		                         is_intercompany, counterparty_entity, created_at, updated_at,
		                         profile_id, direction, transaction_type, description,
		                         counterparty_account, merchant_name, merchant_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO UPDATE SET
			profile_id             = excluded.profile_id,
			direction              = excluded.direction,
			transaction_type       = excluded.transaction_type,
			description            = excluded.description,
			counterparty_account   = excluded.counterparty_account,
			merchant_name          = excluded.merchant_name,
			merchant_category      = excluded.merchant_category,
			ledger_transaction_id  = excluded.ledger_transaction_id,
			ledger_line_id         = excluded.ledger_line_id,
			suggested_account_id   = excluded.suggested_account_id,
			suggested_account_name = excluded.suggested_account_name,
			match_type             = excluded.match_type,
			confidence             = excluded.confidence,
			action                 = excluded.action,
			reasons                = excluded.reasons,
			explanation            = excluded.explanation,
			is_intercompany        = excluded.is_intercompany,
			counterparty_entity    = excluded.counterparty_entity,
			updated_at             = excluded.updated_at
		RETURNING id`,
		uuid.NewString(), tx.ID, tx.EntityName, tx.Date.UTC().Format(timeLayout), tx.Amount.String(), tx.Currency,
		tx.CounterpartyName, tx.PaymentReference, result.LedgerTransactionID,
		result.LedgerLineID, result.SuggestedAccountID, result.SuggestedAccountName,
		string(result.MatchType), result.Confidence.StringFixed(2), string(result.Action), string(reasons), result.Explanation,
		boolToInt(result.IsIntercompany), result.CounterpartyEntity, now, now,
		tx.ProfileID, string(tx.Direction), tx.Kind, tx.Description,
		tx.CounterpartyAccount, tx.MerchantName, tx.MerchantCategory,
	).Scan(&id)
	if err != nil {
		return "", errors.StorageError(errors.CodeQueryFailed, "submit suggestion for "+tx.ID, err)
	}
	return id, nil
}

const suggestionColumns = `
	id, transaction_id, entity_name, transaction_date, amount, currency, counterparty_name,
	payment_reference, ledger_transaction_id, ledger_line_id, suggested_account_id,
	suggested_account_name, match_type, confidence, action, reasons, explanation,
	is_intercompany, counterparty_entity, created_at, updated_at, profile_id, direction,
	transaction_type, description, counterparty_account, merchant_name, merchant_category`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row rowScanner) (*Suggestion, error) {
	var (
		sg                         Suggestion
		date, amount, confidence   string
		matchType, action, reasons string
		direction                  string
		createdAt, updatedAt       string
		intercompany               int
	)
	if err := row.Scan(&sg.ID, &sg.TransactionID, &sg.EntityName, &date, &amount, &sg.Currency,
		&sg.CounterpartyName, &sg.PaymentReference, &sg.LedgerTransactionID, &sg.LedgerLineID,
		&sg.SuggestedAccountID, &sg.SuggestedAccountName, &matchType, &confidence, &action,
		&reasons, &sg.Explanation, &intercompany, &sg.CounterpartyEntity, &createdAt, &updatedAt, &sg.ProfileID, &direction,
		&sg.TransactionType, &sg.Description, &sg.CounterpartyAccount, &sg.MerchantName,
		&sg.MerchantCategory); err != nil {
		return nil, err
	}

	var err error
	if sg.TransactionDate, err = time.Parse(timeLayout, date); err != nil {
		return nil, err
	}
	if sg.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if sg.Confidence, err = decimal.NewFromString(confidence); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(reasons), &sg.Reasons); err != nil {
		return nil, err
	}
	if sg.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if sg.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	sg.Direction = models.Direction(direction)
	sg.MatchType = models.MatchType(matchType)
	sg.Action = models.Action(action)
	sg.IsIntercompany = intercompany == 1
	return &sg, nil
}

// Suggestion returns the stored suggestion for a bank transaction
func (s *Store) Suggestion(ctx context.Context, transactionID string) (*Suggestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE transaction_id = ?`, transactionID)
	sg, err := scanSuggestion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.StorageError(errors.CodeNotFound, "suggestion for "+transactionID, err)
		}
		return nil, errors.StorageError(errors.CodeQueryFailed, "load suggestion for "+transactionID, err)
	}
	return sg, nil
}

// ListSuggestions returns the most recently updated suggestions first
func (s *Store) ListSuggestions(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions ORDER BY updated_at DESC, transaction_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list suggestions", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "scan suggestion", err)
		}
		out = append(out, *sg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list suggestions", err)
	}
	return out, nil
}
