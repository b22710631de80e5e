package parsers

import (
	"fmt"
	"strings"
)

// Logical transaction fields
const (
	FieldID                  = "id"
	FieldProfileID           = "profile_id"
	FieldEntityName          = "entity_name"
	FieldDirection           = "direction"
	FieldKind                = "kind"
	FieldDate                = "date"
	FieldAmount              = "amount"
	FieldCurrency            = "currency"
	FieldDescription         = "description"
	FieldPaymentReference    = "payment_reference"
	FieldCounterpartyName    = "counterparty_name"
	FieldCounterpartyAccount = "counterparty_account"
	FieldFromAmount          = "from_amount"
	FieldFromCurrency        = "from_currency"
	FieldExchangeRate        = "exchange_rate"
	FieldMerchantName        = "merchant_name"
	FieldMerchantCategory    = "merchant_category"
)

// Logical ledger entry fields. Date, amount and currency are shared with
// transactions.
const (
	FieldTransactionID = "transaction_id"
	FieldLineID        = "line_id"
	FieldType          = "type"
	FieldAccountID     = "account_id"
	FieldAccountName   = "account_name"
	FieldEntityID      = "entity_id"
	FieldMemo          = "memo"
	FieldReconciled    = "is_reconciled"
)

// Column describes one logical field and the header names it may appear under
type Column struct {
	Field    string   `json:"field" yaml:"field"`
	Aliases  []string `json:"aliases" yaml:"aliases"`
	Required bool     `json:"required" yaml:"required"`
}

// ColumnSet is the set of columns a parser understands
type ColumnSet []Column

// Resolve maps each field to the index of the first header matching one of
// its aliases. Matching ignores case, spaces, dashes and underscores.
func (cs ColumnSet) Resolve(headers []string) map[string]int {
	byName := make(map[string]int, len(headers))
	for i, header := range headers {
		key := normalizeHeader(header)
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
	}

	resolved := make(map[string]int, len(cs))
	for _, col := range cs {
		for _, alias := range append([]string{col.Field}, col.Aliases...) {
			if index, ok := byName[normalizeHeader(alias)]; ok {
				resolved[col.Field] = index
				break
			}
		}
	}
	return resolved
}

// Missing returns the required fields absent from resolved
func (cs ColumnSet) Missing(resolved map[string]int) []string {
	var missing []string
	for _, col := range cs {
		if _, ok := resolved[col.Field]; col.Required && !ok {
			missing = append(missing, col.Field)
		}
	}
	return missing
}

// WithAliases returns a copy of the set with extra aliases added per field
func (cs ColumnSet) WithAliases(extra map[string][]string) ColumnSet {
	out := make(ColumnSet, len(cs))
	for i, col := range cs {
		col.Aliases = append(append([]string(nil), extra[col.Field]...), col.Aliases...)
		out[i] = col
	}
	return out
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(s)
}

// TransactionColumns returns the accepted columns of a bank transaction export
func TransactionColumns() ColumnSet {
	return ColumnSet{
		{Field: FieldID, Aliases: []string{"transaction_id", "reference_number", "TransferWise ID", "fitid"}, Required: true},
		{Field: FieldDate, Aliases: []string{"created_on", "transaction_date", "value_date", "booking_date"}, Required: true},
		{Field: FieldAmount, Aliases: []string{"transaction_amount", "value"}, Required: true},
		{Field: FieldCurrency, Aliases: []string{"ccy", "transaction_currency"}},
		{Field: FieldProfileID, Aliases: []string{"profile"}},
		{Field: FieldEntityName, Aliases: []string{"entity", "account_holder"}},
		{Field: FieldDirection, Aliases: []string{"debit_credit", "dr_cr", "side"}},
		{Field: FieldKind, Aliases: []string{"transaction_type", "details_type", "type"}},
		{Field: FieldDescription, Aliases: []string{"details", "narrative"}},
		{Field: FieldPaymentReference, Aliases: []string{"reference", "payment_ref"}},
		{Field: FieldCounterpartyName, Aliases: []string{"counterparty", "payee_name", "payer_name", "recipient_name", "sender_name"}},
		{Field: FieldCounterpartyAccount, Aliases: []string{"iban", "counterparty_iban", "payee_account", "sender_account"}},
		{Field: FieldFromAmount, Aliases: []string{"source_amount"}},
		{Field: FieldFromCurrency, Aliases: []string{"source_currency"}},
		{Field: FieldExchangeRate, Aliases: []string{"rate", "fx_rate"}},
		{Field: FieldMerchantName, Aliases: []string{"merchant"}},
		{Field: FieldMerchantCategory, Aliases: []string{"mcc", "category"}},
	}
}

// LedgerColumns returns the accepted columns of a general ledger export
func LedgerColumns() ColumnSet {
	return ColumnSet{
		{Field: FieldTransactionID, Aliases: []string{"tranid", "document_number", "journal_id"}, Required: true},
		{Field: FieldDate, Aliases: []string{"trandate", "posting_date"}, Required: true},
		{Field: FieldAmount, Aliases: []string{"net_amount"}, Required: true},
		{Field: FieldLineID, Aliases: []string{"line", "line_number"}},
		{Field: FieldType, Aliases: []string{"transaction_type", "trantype"}},
		{Field: FieldCurrency, Aliases: []string{"ccy"}},
		{Field: FieldAccountID, Aliases: []string{"account", "account_number"}},
		{Field: FieldAccountName, Aliases: []string{"account_display_name"}},
		{Field: FieldEntityID, Aliases: []string{"subsidiary_id", "subsidiary"}},
		{Field: FieldEntityName, Aliases: []string{"subsidiary_name"}},
		{Field: FieldMemo, Aliases: []string{"description", "line_memo"}},
		{Field: FieldReconciled, Aliases: []string{"reconciled", "cleared"}},
	}
}

// TransactionParserConfig holds configuration for parsing bank transaction files
type TransactionParserConfig struct {
	Parse *ParseConfig `json:"-"`

	// ColumnAliases adds header names per logical field
	ColumnAliases map[string][]string `json:"column_aliases,omitempty" yaml:"column_aliases,omitempty"`

	// Defaults for exports that carry one account per file
	DefaultCurrency   string `json:"default_currency,omitempty" yaml:"default_currency,omitempty"`
	DefaultEntityName string `json:"default_entity_name,omitempty" yaml:"default_entity_name,omitempty"`
	DefaultProfileID  int64  `json:"default_profile_id,omitempty" yaml:"default_profile_id,omitempty"`
}

// DefaultTransactionParserConfig returns a configuration with standard defaults
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		Parse:         DefaultParseConfig(),
		ColumnAliases: make(map[string][]string),
	}
}

// Columns returns the column set including configured aliases
func (c *TransactionParserConfig) Columns() ColumnSet {
	return TransactionColumns().WithAliases(c.ColumnAliases)
}

// Validate checks if the transaction parser configuration is valid
func (c *TransactionParserConfig) Validate() error {
	if err := validateAliases(TransactionColumns(), c.ColumnAliases); err != nil {
		return err
	}
	if c.DefaultCurrency != "" && len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("default currency must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	return validateParseConfig(c.Parse)
}

// LedgerParserConfig holds configuration for parsing ledger entry files
type LedgerParserConfig struct {
	Parse         *ParseConfig        `json:"-"`
	ColumnAliases map[string][]string `json:"column_aliases,omitempty" yaml:"column_aliases,omitempty"`

	// DefaultCurrency applies to rows without a currency column
	DefaultCurrency string `json:"default_currency,omitempty" yaml:"default_currency,omitempty"`

	// IncludeReconciled keeps entries already marked reconciled
	IncludeReconciled bool `json:"include_reconciled" yaml:"include_reconciled"`
}

// DefaultLedgerParserConfig returns a configuration with standard defaults
func DefaultLedgerParserConfig() *LedgerParserConfig {
	return &LedgerParserConfig{
		Parse:         DefaultParseConfig(),
		ColumnAliases: make(map[string][]string),
	}
}

// Columns returns the column set including configured aliases
func (c *LedgerParserConfig) Columns() ColumnSet {
	return LedgerColumns().WithAliases(c.ColumnAliases)
}

// Validate checks if the ledger parser configuration is valid
func (c *LedgerParserConfig) Validate() error {
	if err := validateAliases(LedgerColumns(), c.ColumnAliases); err != nil {
		return err
	}
	return validateParseConfig(c.Parse)
}

func validateAliases(columns ColumnSet, aliases map[string][]string) error {
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col.Field] = true
	}
	for field, names := range aliases {
		if !known[field] {
			return fmt.Errorf("unknown column field %q", field)
		}
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("empty alias for field %q", field)
			}
		}
	}
	return nil
}

func validateParseConfig(pc *ParseConfig) error {
	if pc == nil {
		return nil
	}
	if pc.Delimiter == 0 || pc.Delimiter == '\n' || pc.Delimiter == '\r' || pc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", pc.Delimiter)
	}
	if pc.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", pc.MaxErrors)
	}
	return nil
}
