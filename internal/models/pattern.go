package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PatternKind selects which transaction field a pattern inspects
type PatternKind string

const (
	PatternCounterparty PatternKind = "counterparty"
	PatternReference    PatternKind = "reference"
	PatternDescription  PatternKind = "description"
)

// IsValid checks if the pattern kind is one of the known kinds
func (k PatternKind) IsValid() bool {
	switch k {
	case PatternCounterparty, PatternReference, PatternDescription:
		return true
	}
	return false
}

// TargetType is what a pattern points at in the ledger
type TargetType string

const (
	TargetAccount  TargetType = "account"
	TargetVendor   TargetType = "vendor"
	TargetCustomer TargetType = "customer"
)

// Pattern is a learned or curated rule mapping a transaction feature to a
// ledger target
type Pattern struct {
	ID          string          `json:"id"`
	Kind        PatternKind     `json:"pattern_type"`
	Value       string          `json:"pattern_value"`
	IsRegex     bool            `json:"is_regex"`
	TargetType  TargetType      `json:"target_type"`
	TargetID    string          `json:"target_id"`
	TargetName  string          `json:"target_name"`
	AutoApprove bool            `json:"is_auto_approve"`
	Boost       decimal.Decimal `json:"confidence_boost"`
	Description string          `json:"description,omitempty"`
}

// Field returns the transaction field this pattern is evaluated against
func (p *Pattern) Field(tx *Transaction) string {
	switch p.Kind {
	case PatternCounterparty:
		return tx.CounterpartyName
	case PatternReference:
		return tx.PaymentReference
	case PatternDescription:
		return tx.Description
	}
	return ""
}

// Validate performs basic validation on the Pattern
func (p *Pattern) Validate() error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("invalid pattern type: %q", p.Kind)
	}
	if strings.TrimSpace(p.Value) == "" {
		return fmt.Errorf("pattern value cannot be empty")
	}
	switch p.TargetType {
	case TargetAccount, TargetVendor, TargetCustomer:
	default:
		return fmt.Errorf("invalid target type: %q", p.TargetType)
	}
	if p.Boost.IsNegative() || p.Boost.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("confidence boost %s outside [0, 1]", p.Boost)
	}
	return nil
}
