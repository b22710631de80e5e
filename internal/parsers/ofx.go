package parsers

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser parses OFX/QFX bank statement downloads
type OFXParser struct {
	entityName string
	profileID  int64
	logger     logger.Logger
}

// NewOFXParser creates a parser that stamps every transaction with the given
// entity. OFX files carry account numbers but not the owning entity.
func NewOFXParser(entityName string, profileID int64) *OFXParser {
	return &OFXParser{
		entityName: entityName,
		profileID:  profileID,
		logger:     logger.GetGlobalLogger().WithComponent("ofx_parser"),
	}
}

// ParseFile parses the OFX file at filePath
func (p *OFXParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, error) {
	file, err := openInput(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	transactions, err := p.Parse(ctx, file)
	if err != nil {
		if rerr, ok := errors.AsReconcilerError(err); ok {
			rerr.WithContext("file", filePath)
		}
		return nil, err
	}
	return transactions, nil
}

// Parse reads bank and credit card statements from r
func (p *OFXParser) Parse(ctx context.Context, r io.Reader) ([]*models.Transaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "read_ofx", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "failed to parse OFX file").
			WithSuggestion("Download the statement again in OFX 1.x or 2.x format")
	}

	var transactions []*models.Transaction
	for _, msg := range resp.Bank {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			transactions = append(transactions, p.convertList(stmt.BankTranList, stmt.CurDef.String())...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			transactions = append(transactions, p.convertList(stmt.BankTranList, stmt.CurDef.String())...)
		}
	}

	p.logger.WithFields(logger.Fields{
		"entity":       p.entityName,
		"transactions": len(transactions),
		"bank":         len(resp.Bank),
		"credit_card":  len(resp.CreditCard),
	}).Info("Parsed OFX file")
	return transactions, nil
}

func (p *OFXParser) convertList(list *ofxgo.TransactionList, currency string) []*models.Transaction {
	out := make([]*models.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		tx, err := p.convert(ofxTx, currency)
		if err != nil {
			p.logger.WithError(err).WithField("fitid", string(ofxTx.FiTID)).Warn("Skipping OFX transaction")
			continue
		}
		out = append(out, tx)
	}
	return out
}

// convert maps one STMTTRN. OFX amounts are signed, negative for debits.
func (p *OFXParser) convert(ofxTx ofxgo.Transaction, currency string) (*models.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(4))
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	direction := models.DirectionCredit
	if amount.IsNegative() {
		direction = models.DirectionDebit
	}

	tx := &models.Transaction{
		ID:               string(ofxTx.FiTID),
		ProfileID:        p.profileID,
		EntityName:       p.entityName,
		Direction:        direction,
		Kind:             ofxTx.TrnType.String(),
		Date:             ofxTx.DtPosted.Time,
		Amount:           amount,
		Currency:         currency,
		Description:      strings.TrimSpace(string(ofxTx.Memo)),
		PaymentReference: strings.TrimSpace(string(ofxTx.RefNum)),
		CounterpartyName: counterpartyName(ofxTx),
	}
	if ofxTx.BankAcctTo != nil {
		tx.CounterpartyAccount = string(ofxTx.BankAcctTo.AcctID)
	}
	if ofxTx.OrigCurrency != nil {
		tx.FromCurrency = ofxTx.OrigCurrency.CurSym.String()
		if rate, err := decimal.NewFromString(ofxTx.OrigCurrency.CurRate.Rat.FloatString(8)); err == nil && !rate.IsZero() {
			tx.ExchangeRate = &rate
		}
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// counterpartyName prefers the structured payee over the free-text name
func counterpartyName(ofxTx ofxgo.Transaction) string {
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		return strings.TrimSpace(string(ofxTx.Payee.Name))
	}
	return strings.TrimSpace(string(ofxTx.Name))
}

// preprocessOFX fixes formatting issues common in bank downloads
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagPattern.ReplaceAllString(content, "$1>")
}
