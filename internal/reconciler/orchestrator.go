// Package reconciler runs bank transactions through the matching tiers and
// turns the outcome into scored, routed suggestions.
//
// The Pipeline handles one transaction at a time:
//  1. intercompany detection
//  2. exact tier, accepted at 0.90
//  3. fuzzy tier, accepted at 0.70
//  4. inference tier, accepted at 0.50
//  5. otherwise unmatched
//
// An accepted result receives the intercompany flag and the learned-pattern
// boost, then the scorer's audit lines and routing action. Run fans a batch out
// over a bounded worker pool, and the Service wires the batch to its ledger,
// pattern and suggestion stores.
//
// Example usage:
//
//	pipeline := reconciler.NewPipeline(reconciler.Components{Registry: registry})
//	snapshot := reconciler.NewSnapshot(entries, patterns)
//	result := pipeline.Process(ctx, tx, snapshot)
//	fmt.Println(result.MatchType, result.Confidence, result.Action)
package reconciler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/learning"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/vectors"
	"bank-reconciliation-service/pkg/logger"
)

// Tier acceptance gates, compared against the confidence a tier reports
// before any boost is applied
var (
	exactGate = decimal.RequireFromString("0.90")
	fuzzyGate = decimal.RequireFromString("0.70")
	llmGate   = decimal.RequireFromString("0.50")

	maxConfidence = decimal.NewFromInt(1)
)

// Booster supplies the confidence boost earned by similar past approvals
type Booster interface {
	Boost(ctx context.Context, tx *models.Transaction) (decimal.Decimal, []vectors.SimilarPattern)
}

var _ Booster = (*learning.PatternLearner)(nil)

// Snapshot is the immutable matching input shared by every transaction of a
// batch: the ledger candidates and the compiled active patterns
type Snapshot struct {
	index    *matcher.LedgerIndex
	patterns *matcher.PatternSet
}

// NewSnapshot copies entries and compiles patterns once for a batch
func NewSnapshot(entries []models.LedgerEntry, patterns []models.Pattern) *Snapshot {
	owned := make([]models.LedgerEntry, len(entries))
	copy(owned, entries)
	return &Snapshot{
		index:    matcher.NewLedgerIndex(owned),
		patterns: matcher.CompilePatterns(patterns),
	}
}

// Entries returns the ledger candidates in load order
func (s *Snapshot) Entries() []models.LedgerEntry {
	return s.index.Entries()
}

// Patterns returns the compiled pattern set
func (s *Snapshot) Patterns() *matcher.PatternSet {
	return s.patterns
}

// Components are the collaborators of a Pipeline. Nil fields select defaults:
// the built-in registry and tolerances, no inference tier, no boost and the
// default batch settings.
type Components struct {
	Registry *matcher.EntityRegistry
	Matching *matcher.MatchingConfig
	LLM      *matcher.LLMMatcher
	Booster  Booster
	Config   *Config
}

// Pipeline runs one transaction through the tiers. It holds no per-call state
// and is safe for concurrent use.
type Pipeline struct {
	config       *matcher.MatchingConfig
	batch        *Config
	intercompany *matcher.IntercompanyDetector
	exact        *matcher.ExactMatcher
	fuzzy        *matcher.FuzzyMatcher
	llm          *matcher.LLMMatcher
	booster      Booster
	scorer       *matcher.ConfidenceScorer
	logger       logger.Logger
}

// NewPipeline creates a pipeline from its components
func NewPipeline(c Components) *Pipeline {
	if c.Registry == nil {
		c.Registry = matcher.DefaultEntityRegistry()
	}
	if c.Matching == nil {
		c.Matching = matcher.DefaultMatchingConfig()
	} else {
		// Workers read the thresholds concurrently; the caller keeps its copy
		c.Matching = c.Matching.Clone()
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	return &Pipeline{
		config:       c.Matching,
		batch:        c.Config,
		intercompany: matcher.NewIntercompanyDetector(c.Registry),
		exact:        matcher.NewExactMatcher(c.Matching, c.Registry),
		fuzzy:        matcher.NewFuzzyMatcher(c.Matching),
		llm:          c.LLM,
		booster:      c.Booster,
		scorer:       matcher.NewConfidenceScorer(),
		logger:       logger.GetGlobalLogger().WithComponent("pipeline"),
	}
}

// Process decides the match for tx against snapshot. The returned result is
// finalised: its confidence is clamped, its reasons open with the base line
// and close with the final line, and its action is routed.
func (p *Pipeline) Process(ctx context.Context, tx *models.Transaction, snapshot *Snapshot) *models.MatchResult {
	ic := p.intercompany.Detect(tx)

	if result := p.exact.Match(tx, p.exactCandidates(tx, snapshot), snapshot.patterns); result != nil &&
		result.Confidence.GreaterThanOrEqual(exactGate) {
		return p.accept(ctx, tx, result, ic)
	}

	if result := p.fuzzy.Match(tx, p.fuzzyCandidates(tx, snapshot)); result != nil &&
		result.Confidence.GreaterThanOrEqual(fuzzyGate) {
		return p.accept(ctx, tx, result, ic)
	}

	if p.llm.Enabled() && snapshot.index.Len() > 0 {
		if result := p.llm.Match(ctx, tx, snapshot.Entries()); result != nil &&
			result.Confidence.GreaterThanOrEqual(llmGate) {
			return p.accept(ctx, tx, result, ic)
		}
	}

	unmatched := &models.MatchResult{
		MatchType:          models.MatchUnmatched,
		Confidence:         decimal.Zero,
		Reasons:            []string{"no_match_found"},
		IsIntercompany:     ic.IsIntercompany,
		CounterpartyEntity: ic.EntityName,
	}
	return p.finalize(unmatched)
}

// exactCandidates narrows the ledger to entries that can pass the amount gate
func (p *Pipeline) exactCandidates(tx *models.Transaction, snapshot *Snapshot) []models.LedgerEntry {
	return snapshot.index.WithinAmount(tx.Amount, p.config.ExactAmountTolerance)
}

func (p *Pipeline) fuzzyCandidates(tx *models.Transaction, snapshot *Snapshot) []models.LedgerEntry {
	if tx.IsCrossCurrency() {
		return snapshot.index.WithinPercent(tx.Amount, p.config.FXVariancePercent)
	}
	return snapshot.index.WithinAmount(tx.Amount, p.config.FuzzyAmountTolerance)
}

func (p *Pipeline) accept(ctx context.Context, tx *models.Transaction, result *models.MatchResult, ic models.IntercompanyResult) *models.MatchResult {
	result.IsIntercompany = ic.IsIntercompany
	result.CounterpartyEntity = ic.EntityName

	if p.booster != nil {
		boost, similar := p.booster.Boost(ctx, tx)
		if boost.IsPositive() {
			result.Confidence = decimal.Min(maxConfidence, result.Confidence.Add(boost))
			result.SimilarPatterns = len(similar)
			result.Reasons = append(result.Reasons, fmt.Sprintf("pattern_boost:%s (%d similar)", boost.StringFixed(2), len(similar)))
		}
	}
	return p.finalize(result)
}

// finalize wraps the tier reasons with the scorer's audit lines and routes the action
func (p *Pipeline) finalize(result *models.MatchResult) *models.MatchResult {
	result.Confidence = p.scorer.Clamp(result.Confidence.Round(2))
	result.Action = p.scorer.Action(result.Confidence)

	reasons := make([]string, 0, len(result.Reasons)+2)
	reasons = append(reasons, p.scorer.BaseReason(result.MatchType))
	reasons = append(reasons, result.Reasons...)
	reasons = append(reasons, p.scorer.FinalReason(result.Confidence, result.Action))
	result.Reasons = reasons

	p.logger.WithFields(logger.Fields{
		"match_type": result.MatchType,
		"ledger_id":  result.LedgerTransactionID,
		"confidence": result.Confidence.StringFixed(2),
		"action":     result.Action,
	}).Debug("Transaction matched")
	return result
}
