package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
)

var (
	scoreFloor = decimal.Zero
	scoreCeil  = decimal.NewFromInt(1)
)

var baseScores = map[models.MatchType]decimal.Decimal{
	models.MatchExactAll:        decimal.RequireFromString("1.00"),
	models.MatchExactAmountRef:  decimal.RequireFromString("0.95"),
	models.MatchExactAmountDate: decimal.RequireFromString("0.90"),
	models.MatchFuzzyHigh:       decimal.RequireFromString("0.85"),
	models.MatchFuzzyMedium:     decimal.RequireFromString("0.75"),
	models.MatchLLMConfident:    decimal.RequireFromString("0.80"),
	models.MatchLLMUncertain:    decimal.RequireFromString("0.60"),
	models.MatchPattern:         decimal.RequireFromString("0.85"),
	models.MatchUnmatched:       decimal.RequireFromString("0.00"),
}

var (
	adjustIntercompany      = decimal.RequireFromString("0.05")
	adjustRepeatParty       = decimal.RequireFromString("0.05")
	adjustFXVariance        = decimal.RequireFromString("-0.15")
	adjustDateDrift         = decimal.RequireFromString("-0.10")
	adjustPerExtraCandidate = decimal.RequireFromString("-0.05")

	fxVarianceLimit    = decimal.RequireFromString("2.0")
	dateDriftLimitDays = 5
)

// actionThresholds are checked top down; the first floor met decides
var actionThresholds = []struct {
	floor  decimal.Decimal
	action models.Action
}{
	{decimal.RequireFromString("0.95"), models.ActionAutoApprove},
	{decimal.RequireFromString("0.80"), models.ActionSuggest},
	{decimal.RequireFromString("0.60"), models.ActionReview},
}

// ScoreContext carries the contextual signals that adjust a base score.
// Nil pointers mean "signal not available".
type ScoreContext struct {
	Intercompany       bool
	PatternBoost       *decimal.Decimal
	RepeatCounterparty bool
	FXVariancePercent  *decimal.Decimal
	DateDriftDays      int
	CandidateCount     int
}

// Score is a final confidence with its audit trail and routing action
type Score struct {
	Value   decimal.Decimal
	Reasons []string
	Action  models.Action
}

// ConfidenceScorer turns a match type and context into a final score. It
// holds only static tables and is safe for concurrent use.
type ConfidenceScorer struct{}

// NewConfidenceScorer creates a scorer
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// BaseScore returns the starting score for a match type; unknown types score zero
func (cs *ConfidenceScorer) BaseScore(matchType models.MatchType) decimal.Decimal {
	if base, ok := baseScores[matchType]; ok {
		return base
	}
	return scoreFloor
}

// Action routes a confidence to an action
func (cs *ConfidenceScorer) Action(confidence decimal.Decimal) models.Action {
	for _, t := range actionThresholds {
		if confidence.GreaterThanOrEqual(t.floor) {
			return t.action
		}
	}
	return models.ActionManual
}

// Clamp limits a score to [0.00, 1.00]
func (cs *ConfidenceScorer) Clamp(score decimal.Decimal) decimal.Decimal {
	return decimal.Max(scoreFloor, decimal.Min(scoreCeil, score))
}

// BaseReason is the opening line of every audit trail
func (cs *ConfidenceScorer) BaseReason(matchType models.MatchType) string {
	return fmt.Sprintf("Base: %s (%s)", cs.BaseScore(matchType).StringFixed(2), matchType)
}

// FinalReason is the closing line of every audit trail
func (cs *ConfidenceScorer) FinalReason(score decimal.Decimal, action models.Action) string {
	return fmt.Sprintf("Final: %s -> %s", score.StringFixed(2), action)
}

// Score applies the adjustments in a fixed order: intercompany, pattern boost,
// repeat counterparty, FX variance, date drift, then competing candidates.
func (cs *ConfidenceScorer) Score(matchType models.MatchType, ctx ScoreContext) Score {
	score := cs.BaseScore(matchType)
	reasons := []string{cs.BaseReason(matchType)}

	if ctx.Intercompany {
		score = score.Add(adjustIntercompany)
		reasons = append(reasons, fmt.Sprintf("+%s (intercompany)", adjustIntercompany.StringFixed(2)))
	}
	if ctx.PatternBoost != nil && ctx.PatternBoost.IsPositive() {
		score = score.Add(*ctx.PatternBoost)
		reasons = append(reasons, fmt.Sprintf("+%s (pattern match)", ctx.PatternBoost.StringFixed(2)))
	}
	if ctx.RepeatCounterparty {
		score = score.Add(adjustRepeatParty)
		reasons = append(reasons, fmt.Sprintf("+%s (repeat counterparty)", adjustRepeatParty.StringFixed(2)))
	}
	if ctx.FXVariancePercent != nil && ctx.FXVariancePercent.GreaterThan(fxVarianceLimit) {
		score = score.Add(adjustFXVariance)
		reasons = append(reasons, fmt.Sprintf("%s (high FX variance: %s%%)", adjustFXVariance.StringFixed(2), ctx.FXVariancePercent.String()))
	}
	if ctx.DateDriftDays > dateDriftLimitDays {
		score = score.Add(adjustDateDrift)
		reasons = append(reasons, fmt.Sprintf("%s (date drift: %d days)", adjustDateDrift.StringFixed(2), ctx.DateDriftDays))
	}
	if ctx.CandidateCount > 1 {
		penalty := adjustPerExtraCandidate.Mul(decimal.NewFromInt(int64(ctx.CandidateCount - 1)))
		score = score.Add(penalty)
		reasons = append(reasons, fmt.Sprintf("%s (%d candidates)", penalty.StringFixed(2), ctx.CandidateCount))
	}

	score = cs.Clamp(score)
	action := cs.Action(score)
	reasons = append(reasons, cs.FinalReason(score, action))

	return Score{Value: score, Reasons: reasons, Action: action}
}
