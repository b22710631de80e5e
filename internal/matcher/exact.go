package matcher

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

var digitRuns = regexp.MustCompile(`\d+`)

var exactConfidence = map[models.MatchType]decimal.Decimal{
	models.MatchExactAll:        decimal.RequireFromString("1.00"),
	models.MatchExactAmountRef:  decimal.RequireFromString("0.95"),
	models.MatchExactAmountDate: decimal.RequireFromString("0.90"),
}

// ExactMatcher is the deterministic tier. It returns the first candidate,
// in the order given, whose amount and date agree exactly; corroborating
// evidence only raises the match type.
type ExactMatcher struct {
	config   *MatchingConfig
	registry *EntityRegistry
	logger   logger.Logger
}

// NewExactMatcher creates an exact matcher. Known entity accounts come from
// registry; nil arguments select the defaults.
func NewExactMatcher(config *MatchingConfig, registry *EntityRegistry) *ExactMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if registry == nil {
		registry = DefaultEntityRegistry()
	}
	return &ExactMatcher{
		config:   config,
		registry: registry,
		logger:   logger.GetGlobalLogger().WithComponent("exact_matcher"),
	}
}

// Match returns the first qualifying candidate or nil
func (em *ExactMatcher) Match(tx *models.Transaction, candidates []models.LedgerEntry, patterns *PatternSet) *models.MatchResult {
	for i := range candidates {
		if result := em.tryMatch(tx, &candidates[i], patterns); result != nil {
			em.logger.WithFields(logger.Fields{
				"transaction_id": tx.ID,
				"ledger_id":      result.LedgerTransactionID,
				"match_type":     result.MatchType,
			}).Debug("Exact match found")
			return result
		}
	}
	return nil
}

func (em *ExactMatcher) tryMatch(tx *models.Transaction, entry *models.LedgerEntry, patterns *PatternSet) *models.MatchResult {
	// Step 1: gates
	if !em.amountMatches(tx, entry) {
		return nil
	}
	if models.DaysBetween(tx.Date, entry.Date) > em.config.ExactDateToleranceDays {
		return nil
	}
	reasons := []string{"amount_exact", "date_within_1_day"}

	// Step 2: escalate on corroborating evidence, first hit wins
	matchType := models.MatchExactAmountDate
	switch {
	case referenceMatches(tx, entry):
		reasons = append(reasons, "reference_contains_tranid")
		matchType = models.MatchExactAll
	case em.registry.IsKnownAccount(tx.CounterpartyAccount):
		reasons = append(reasons, "counterparty_iban_known")
		matchType = models.MatchExactAmountRef
	case patterns.MatchesAccount(tx, entry.AccountID):
		reasons = append(reasons, "pattern_exact_match")
		matchType = models.MatchExactAmountRef
	}

	result := &models.MatchResult{
		MatchType:  matchType,
		Confidence: exactConfidence[matchType],
		Reasons:    reasons,
	}
	return result.WithCandidate(entry)
}

// amountMatches compares absolute amounts so direction conventions of the
// bank and the ledger do not matter
func (em *ExactMatcher) amountMatches(tx *models.Transaction, entry *models.LedgerEntry) bool {
	diff := tx.Amount.Abs().Sub(entry.Amount.Abs()).Abs()
	return diff.LessThanOrEqual(em.config.ExactAmountTolerance)
}

// referenceMatches reports whether the payment reference names the ledger
// transaction, appears in its memo, or shares a number with its id
func referenceMatches(tx *models.Transaction, entry *models.LedgerEntry) bool {
	if tx.PaymentReference == "" {
		return false
	}
	ref := strings.ToUpper(tx.PaymentReference)
	tranID := strings.ToUpper(entry.TransactionID)

	if strings.Contains(ref, tranID) {
		return true
	}
	if entry.Memo != "" && strings.Contains(strings.ToUpper(entry.Memo), ref) {
		return true
	}

	refNumbers := digitRuns.FindAllString(ref, -1)
	tranNumbers := digitRuns.FindAllString(tranID, -1)
	return len(refNumbers) > 0 && len(tranNumbers) > 0 && intersects(refNumbers, tranNumbers)
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
