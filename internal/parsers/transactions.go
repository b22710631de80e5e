package parsers

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

// TransactionParser parses bank transaction CSV exports
type TransactionParser struct {
	*BaseParser
	config  *TransactionParserConfig
	columns ColumnSet
}

// NewTransactionParser creates a new TransactionParser with the given configuration
func NewTransactionParser(config *TransactionParserConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transaction_parser", nil, err)
	}
	return &TransactionParser{
		BaseParser: NewBaseParser(config.Parse, "transaction_parser"),
		config:     config,
		columns:    config.Columns(),
	}, nil
}

// ParseFile parses a bank transaction CSV file. Invalid rows are skipped and
// reported in the stats.
func (tp *TransactionParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	var transactions []*models.Transaction
	stats, err := tp.parseFile(ctx, filePath, tp.columns, tp.collect(&transactions))
	return transactions, stats, err
}

// Parse parses bank transactions from r. name is used in error locations.
func (tp *TransactionParser) Parse(ctx context.Context, name string, r io.Reader) ([]*models.Transaction, *ParseStats, error) {
	var transactions []*models.Transaction
	stats, err := tp.parse(ctx, name, tp.NewReader(r), tp.columns, tp.collect(&transactions))
	return transactions, stats, err
}

func (tp *TransactionParser) collect(out *[]*models.Transaction) rowFunc {
	return func(record []string, parseCtx *ParseContext) *errors.RowError {
		tx, rowErr := tp.parseTransaction(record, parseCtx)
		if rowErr != nil {
			return rowErr
		}
		if err := tx.Validate(); err != nil {
			return asRowError(err, parseCtx)
		}
		*out = append(*out, tx)
		return nil
	}
}

// parseTransaction creates a Transaction from a CSV record
func (tp *TransactionParser) parseTransaction(record []string, parseCtx *ParseContext) (*models.Transaction, *errors.RowError) {
	file, line := parseCtx.File, parseCtx.LineNumber

	id, rowErr := tp.RequiredField(record, parseCtx, FieldID)
	if rowErr != nil {
		return nil, rowErr
	}

	dateStr, rowErr := tp.RequiredField(record, parseCtx, FieldDate)
	if rowErr != nil {
		return nil, rowErr
	}
	date, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return nil, errors.InvalidDateError(file, line, FieldDate, dateStr)
	}

	amountStr, rowErr := tp.RequiredField(record, parseCtx, FieldAmount)
	if rowErr != nil {
		return nil, rowErr
	}
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, errors.InvalidAmountError(file, line, FieldAmount, amountStr)
	}

	currency := strings.ToUpper(tp.Field(record, parseCtx, FieldCurrency))
	if currency == "" {
		currency = strings.ToUpper(tp.config.DefaultCurrency)
	}

	direction, rowErr := tp.direction(record, parseCtx, amount)
	if rowErr != nil {
		return nil, rowErr
	}

	tx := &models.Transaction{
		ID:                  id,
		ProfileID:           tp.config.DefaultProfileID,
		EntityName:          tp.Field(record, parseCtx, FieldEntityName),
		Direction:           direction,
		Kind:                strings.ToUpper(tp.Field(record, parseCtx, FieldKind)),
		Date:                date,
		Amount:              amount,
		Currency:            currency,
		Description:         tp.Field(record, parseCtx, FieldDescription),
		PaymentReference:    tp.Field(record, parseCtx, FieldPaymentReference),
		CounterpartyName:    tp.Field(record, parseCtx, FieldCounterpartyName),
		CounterpartyAccount: tp.Field(record, parseCtx, FieldCounterpartyAccount),
		FromCurrency:        strings.ToUpper(tp.Field(record, parseCtx, FieldFromCurrency)),
		MerchantName:        tp.Field(record, parseCtx, FieldMerchantName),
		MerchantCategory:    tp.Field(record, parseCtx, FieldMerchantCategory),
	}
	if tx.EntityName == "" {
		tx.EntityName = tp.config.DefaultEntityName
	}
	if raw := tp.Field(record, parseCtx, FieldProfileID); raw != "" {
		profileID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.NewRowError(errors.CodeInvalidData, &errors.ParseContext{
				File: file, Line: line, Column: FieldProfileID, Value: raw, Expected: "integer profile id",
			}, "invalid profile id", err)
		}
		tx.ProfileID = profileID
	}

	if tx.FromAmount, rowErr = tp.optionalDecimal(record, parseCtx, FieldFromAmount); rowErr != nil {
		return nil, rowErr
	}
	if tx.ExchangeRate, rowErr = tp.optionalDecimal(record, parseCtx, FieldExchangeRate); rowErr != nil {
		return nil, rowErr
	}
	// Same-currency rows in mixed exports repeat the currency as the source
	if tx.FromCurrency == tx.Currency && tx.FromAmount == nil {
		tx.FromCurrency = ""
	}

	return tx, nil
}

// direction reads the debit/credit column, or derives it from the amount
// sign when the export has none
func (tp *TransactionParser) direction(record []string, parseCtx *ParseContext, amount decimal.Decimal) (models.Direction, *errors.RowError) {
	raw := tp.Field(record, parseCtx, FieldDirection)
	if raw == "" {
		if amount.IsNegative() {
			return models.DirectionDebit, nil
		}
		return models.DirectionCredit, nil
	}

	switch strings.ToUpper(raw) {
	case "OUT", "OUTGOING":
		return models.DirectionDebit, nil
	case "IN", "INCOMING":
		return models.DirectionCredit, nil
	}
	direction, err := models.ParseDirection(raw)
	if err != nil {
		return "", errors.InvalidDirectionError(parseCtx.File, parseCtx.LineNumber, FieldDirection, raw)
	}
	return direction, nil
}

func (tp *TransactionParser) optionalDecimal(record []string, parseCtx *ParseContext, field string) (*decimal.Decimal, *errors.RowError) {
	raw := tp.Field(record, parseCtx, field)
	if raw == "" {
		return nil, nil
	}
	value, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return nil, errors.InvalidAmountError(parseCtx.File, parseCtx.LineNumber, field, raw)
	}
	return &value, nil
}

// GroupByEntity splits transactions by entity name, keeping input order
// within each group and the order in which entities first appear
func GroupByEntity(transactions []*models.Transaction) ([]string, map[string][]*models.Transaction) {
	var order []string
	groups := make(map[string][]*models.Transaction)
	for _, tx := range transactions {
		if _, ok := groups[tx.EntityName]; !ok {
			order = append(order, tx.EntityName)
		}
		groups[tx.EntityName] = append(groups[tx.EntityName], tx)
	}
	return order, groups
}
