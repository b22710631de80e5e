package models

import (
	"github.com/shopspring/decimal"
)

// MatchType is the closed set of outcomes a pipeline pass can produce
type MatchType string

const (
	MatchExactAll        MatchType = "exact_all"
	MatchExactAmountRef  MatchType = "exact_amount_ref"
	MatchExactAmountDate MatchType = "exact_amount_date"
	MatchFuzzyHigh       MatchType = "fuzzy_high"
	MatchFuzzyMedium     MatchType = "fuzzy_medium"
	MatchLLMConfident    MatchType = "llm_confident"
	MatchLLMUncertain    MatchType = "llm_uncertain"
	MatchPattern         MatchType = "pattern"
	MatchUnmatched       MatchType = "unmatched"
)

// AllMatchTypes lists every match type in tier order
var AllMatchTypes = []MatchType{
	MatchExactAll, MatchExactAmountRef, MatchExactAmountDate,
	MatchFuzzyHigh, MatchFuzzyMedium,
	MatchLLMConfident, MatchLLMUncertain,
	MatchPattern, MatchUnmatched,
}

// ParseMatchType resolves a match type name
func ParseMatchType(s string) (MatchType, bool) {
	for _, mt := range AllMatchTypes {
		if string(mt) == s {
			return mt, true
		}
	}
	return "", false
}

// IsExact reports whether the type belongs to the deterministic tier
func (m MatchType) IsExact() bool {
	return m == MatchExactAll || m == MatchExactAmountRef || m == MatchExactAmountDate
}

// IsFuzzy reports whether the type belongs to the approximate tier
func (m MatchType) IsFuzzy() bool {
	return m == MatchFuzzyHigh || m == MatchFuzzyMedium
}

// IsLLM reports whether the type belongs to the inference tier
func (m MatchType) IsLLM() bool {
	return m == MatchLLMConfident || m == MatchLLMUncertain
}

// Action is the routing decision derived from the final confidence
type Action string

const (
	ActionAutoApprove Action = "auto_approve"
	ActionSuggest     Action = "suggest"
	ActionReview      Action = "review"
	ActionManual      Action = "manual"
)

// MatchResult is the pipeline's decision for one transaction
type MatchResult struct {
	MatchType  MatchType       `json:"match_type"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasons    []string        `json:"reasons"`
	Action     Action          `json:"action"`

	LedgerTransactionID  string `json:"ledger_transaction_id,omitempty"`
	LedgerLineID         int    `json:"ledger_line_id,omitempty"`
	LedgerType           string `json:"ledger_type,omitempty"`
	SuggestedAccountID   string `json:"suggested_account_id,omitempty"`
	SuggestedAccountName string `json:"suggested_account_name,omitempty"`

	IsIntercompany     bool   `json:"is_intercompany"`
	CounterpartyEntity string `json:"counterparty_entity,omitempty"`
	Explanation        string `json:"explanation,omitempty"`
	SimilarPatterns    int    `json:"similar_patterns,omitempty"`
}

// HasLedgerMatch reports whether the result points at a ledger entry
func (r *MatchResult) HasLedgerMatch() bool {
	return r.LedgerTransactionID != ""
}

// WithCandidate copies the ledger identity of entry into the result
func (r *MatchResult) WithCandidate(entry *LedgerEntry) *MatchResult {
	r.LedgerTransactionID = entry.TransactionID
	r.LedgerLineID = entry.LineID
	r.LedgerType = entry.Type
	r.SuggestedAccountID = entry.AccountID
	r.SuggestedAccountName = entry.AccountName
	return r
}

// DetectionMethod names the rule that classified a transaction as intercompany
type DetectionMethod string

const (
	MethodNone            DetectionMethod = ""
	MethodNameExact       DetectionMethod = "counterparty_name_exact"
	MethodNamePattern     DetectionMethod = "counterparty_name_pattern"
	MethodIBAN            DetectionMethod = "counterparty_iban"
	MethodReferenceIndic  DetectionMethod = "payment_reference_ic_indicator"
	MethodReferenceEntity DetectionMethod = "payment_reference_entity_name"
)

// IntercompanyResult reports whether a transaction moves money between group
// entities. Confidence is the detector's own scale and is not comparable to
// MatchResult.Confidence.
type IntercompanyResult struct {
	IsIntercompany bool            `json:"is_intercompany"`
	EntityName     string          `json:"entity_name,omitempty"`
	ProfileID      int64           `json:"profile_id,omitempty"`
	Method         DetectionMethod `json:"detection_method,omitempty"`
	Confidence     float64         `json:"confidence"`
}
