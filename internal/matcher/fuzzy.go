package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

var (
	nonWordChars   = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	referenceCodes = regexp.MustCompile(`[A-Z]{2,4}[-_]?\d{4,}`)
	longDigitRuns  = regexp.MustCompile(`\d{4,}`)
	codeSeparators = strings.NewReplacer("-", "", "_", "")

	hundred = decimal.NewFromInt(100)
)

var fuzzyConfidence = map[models.MatchType]decimal.Decimal{
	models.MatchFuzzyHigh:   decimal.RequireFromString("0.85"),
	models.MatchFuzzyMedium: decimal.RequireFromString("0.75"),
}

// FuzzyMatcher is the approximate tier. Unlike the exact tier it evaluates
// every candidate and keeps the one with the highest confidence; on a tie the
// earlier candidate wins.
type FuzzyMatcher struct {
	config *MatchingConfig
	logger logger.Logger
}

// NewFuzzyMatcher creates a fuzzy matcher; nil selects the default tolerances
func NewFuzzyMatcher(config *MatchingConfig) *FuzzyMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &FuzzyMatcher{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("fuzzy_matcher"),
	}
}

// Match returns the best qualifying candidate or nil
func (fm *FuzzyMatcher) Match(tx *models.Transaction, candidates []models.LedgerEntry) *models.MatchResult {
	var best *models.MatchResult
	bestScore := decimal.Zero

	for i := range candidates {
		result := fm.tryMatch(tx, &candidates[i])
		if result != nil && result.Confidence.GreaterThan(bestScore) {
			best, bestScore = result, result.Confidence
		}
	}

	if best != nil {
		fm.logger.WithFields(logger.Fields{
			"transaction_id": tx.ID,
			"ledger_id":      best.LedgerTransactionID,
			"match_type":     best.MatchType,
			"confidence":     best.Confidence.StringFixed(2),
		}).Debug("Fuzzy match found")
	}
	return best
}

func (fm *FuzzyMatcher) tryMatch(tx *models.Transaction, entry *models.LedgerEntry) *models.MatchResult {
	crossCurrency := tx.IsCrossCurrency()

	amountReason, ok := fm.amountMatches(tx, entry, crossCurrency)
	if !ok {
		return nil
	}
	days := models.DaysBetween(tx.Date, entry.Date)
	if days > fm.config.FuzzyDateToleranceDays {
		return nil
	}
	reasons := []string{amountReason, fmt.Sprintf("date_within_%d_days", days)}

	matchType := models.MatchFuzzyMedium
	if sim := NameSimilarity(tx.CounterpartyName, entry.Memo); sim >= fm.config.NameSimilarityThreshold {
		reasons = append(reasons, fmt.Sprintf("name_similarity_%d%%", int(sim*100)))
		matchType = models.MatchFuzzyHigh
	} else if referencePartiallyMatches(tx.PaymentReference, entry.Memo) {
		reasons = append(reasons, "reference_partial_match")
		matchType = models.MatchFuzzyHigh
	} else {
		reasons = append(reasons, "amount_entity_match")
	}

	confidence := fuzzyConfidence[matchType]
	if crossCurrency {
		confidence = confidence.Sub(fm.config.CrossCurrencyPenalty)
		reasons = append(reasons, "cross_currency -"+fm.config.CrossCurrencyPenalty.StringFixed(2))
	}

	result := &models.MatchResult{
		MatchType:  matchType,
		Confidence: confidence,
		Reasons:    reasons,
	}
	return result.WithCandidate(entry)
}

// amountMatches applies a percentage tolerance to converted amounts and an
// absolute tolerance otherwise. It returns the reason tag describing the basis.
func (fm *FuzzyMatcher) amountMatches(tx *models.Transaction, entry *models.LedgerEntry, crossCurrency bool) (string, bool) {
	txAmount := tx.Amount.Abs()
	glAmount := entry.Amount.Abs()

	if crossCurrency {
		if glAmount.IsZero() {
			return "", false
		}
		variance := txAmount.Sub(glAmount).Div(glAmount).Mul(hundred).Abs()
		if variance.GreaterThan(fm.config.FXVariancePercent) {
			return "", false
		}
		return fmt.Sprintf("amount_within_%s%%", variance.StringFixedBank(1)), true
	}

	if txAmount.Sub(glAmount).Abs().GreaterThan(fm.config.FuzzyAmountTolerance) {
		return "", false
	}
	return "amount_exact", true
}

// NameSimilarity is the Jaccard index of the word sets of a and b. Words are
// lower-cased with punctuation removed, and single characters are ignored.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	s = nonWordChars.ReplaceAllString(strings.ToLower(s), " ")
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		if utf8.RuneCountInString(t) > 1 {
			tokens[t] = struct{}{}
		}
	}
	return tokens
}

// referencePartiallyMatches looks for an invoice-style code or a run of at
// least four digits shared by the payment reference and the memo
func referencePartiallyMatches(reference, memo string) bool {
	if reference == "" {
		return false
	}
	ref := strings.ToUpper(reference)
	upperMemo := strings.ToUpper(memo)

	refCodes := referenceCodes.FindAllString(ref, -1)
	memoCodes := referenceCodes.FindAllString(upperMemo, -1)
	if len(refCodes) > 0 && len(memoCodes) > 0 {
		if intersects(normalizeCodes(refCodes), normalizeCodes(memoCodes)) {
			return true
		}
	}

	return intersects(longDigitRuns.FindAllString(ref, -1), longDigitRuns.FindAllString(upperMemo, -1))
}

func normalizeCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = codeSeparators.Replace(c)
	}
	return out
}
