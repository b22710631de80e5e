// Package learning turns approved matches into reusable knowledge: stored
// embeddings for similarity search and explicit patterns for the exact tier.
// It also converts similarity hits into a confidence boost.
package learning

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/vectors"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// SimilarityStore finds and stores approved transactions by similarity
type SimilarityStore interface {
	FindSimilar(ctx context.Context, tx *models.Transaction, minScore float64, limit int) ([]vectors.SimilarPattern, error)
	StorePattern(ctx context.Context, tx *models.Transaction, matchedTo, matchType string) (uuid.UUID, error)
	DeletePattern(ctx context.Context, id uuid.UUID) (bool, error)
}

// PatternSubmitter persists a learned pattern
type PatternSubmitter interface {
	SubmitPattern(ctx context.Context, p models.Pattern) error
}

// Approval identifies the ledger target a reviewer confirmed for a transaction
type Approval struct {
	LedgerTransactionID string
	AccountID           string
	AccountName         string
	MatchType           models.MatchType
}

// Config controls similarity lookups
type Config struct {
	MinScore float64       `mapstructure:"min_score"`
	Limit    int           `mapstructure:"limit"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the production lookup settings
func DefaultConfig() Config {
	return Config{MinScore: 0.85, Limit: 5, Timeout: 10 * time.Second}
}

// countBoosts is ordered by threshold; the highest threshold met wins
var countBoosts = []struct {
	threshold int
	boost     decimal.Decimal
}{
	{1, decimal.RequireFromString("0.10")},
	{5, decimal.RequireFromString("0.15")},
	{10, decimal.RequireFromString("0.20")},
	{20, decimal.RequireFromString("0.25")},
}

var (
	defaultBoost     = decimal.RequireFromString("0.10")
	veryHighBonus    = decimal.RequireFromString("0.05")
	highBonus        = decimal.RequireFromString("0.02")
	counterpartyGain = decimal.RequireFromString("0.15")
	referenceGain    = decimal.RequireFromString("0.20")
)

// referenceFormats are the numbering conventions lifted into reference
// patterns, tried in order
var referenceFormats = []string{
	`INV[-/]\d{4}[-/]\d+`,
	`PO[-/]\d{4}[-/]\d+`,
	`Invoice\s*#?\s*\d+`,
	`Bill\s*#?\s*\d+`,
}

var referenceMatchers = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(referenceFormats))
	for i, f := range referenceFormats {
		out[i] = regexp.MustCompile("(?i)" + f)
	}
	return out
}()

// PatternLearner computes similarity boosts and learns from approvals.
// A nil store disables boosting and embedding; a nil submitter disables
// pattern submission.
type PatternLearner struct {
	store     SimilarityStore
	submitter PatternSubmitter
	config    Config
	logger    logger.Logger
}

// NewPatternLearner creates a learner
func NewPatternLearner(store SimilarityStore, submitter PatternSubmitter, config Config) *PatternLearner {
	defaults := DefaultConfig()
	if config.MinScore <= 0 {
		config.MinScore = defaults.MinScore
	}
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &PatternLearner{
		store:     store,
		submitter: submitter,
		config:    config,
		logger:    logger.GetGlobalLogger().WithComponent("pattern_learner"),
	}
}

// Boost returns the confidence boost earned by prior approvals resembling tx.
// Search failures are logged and yield no boost.
func (pl *PatternLearner) Boost(ctx context.Context, tx *models.Transaction) (decimal.Decimal, []vectors.SimilarPattern) {
	if pl == nil || pl.store == nil {
		return decimal.Zero, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, pl.config.Timeout)
	defer cancel()

	similar, err := pl.store.FindSimilar(searchCtx, tx, pl.config.MinScore, pl.config.Limit)
	if err != nil {
		pl.logger.WithError(err).WithField("transaction_id", tx.ID).Warn("Pattern search failed")
		return decimal.Zero, nil
	}
	if len(similar) == 0 {
		return decimal.Zero, nil
	}

	boost := BoostForCount(len(similar))

	total := 0.0
	for _, s := range similar {
		total += s.Score
	}
	switch avg := total / float64(len(similar)); {
	case avg >= 0.95:
		boost = boost.Add(veryHighBonus)
	case avg >= 0.90:
		boost = boost.Add(highBonus)
	}
	return boost, similar
}

// BoostForCount maps an approval count to a boost using the threshold table
func BoostForCount(count int) decimal.Decimal {
	boost := defaultBoost
	for _, t := range countBoosts {
		if count >= t.threshold {
			boost = t.boost
		}
	}
	return boost
}

// Learn records an approval. The embedding is stored for similarity search
// and up to three explicit patterns are extracted and submitted. Only the
// patterns that were stored successfully are returned.
func (pl *PatternLearner) Learn(ctx context.Context, tx *models.Transaction, approval Approval) []models.Pattern {
	log := pl.logger.WithField("transaction_id", tx.ID)

	if pl.store != nil {
		if id, err := pl.store.StorePattern(ctx, tx, approval.LedgerTransactionID, string(approval.MatchType)); err != nil {
			log.WithError(err).Error("Failed to store pattern embedding")
		} else {
			log.WithField("pattern_id", id).Info("Stored pattern embedding")
		}
	}

	if pl.submitter == nil {
		return nil
	}

	var learned []models.Pattern
	for _, p := range ExtractPatterns(tx, approval) {
		if err := pl.submitter.SubmitPattern(ctx, p); err != nil {
			log.WithError(err).WithField("pattern", p.Value).Error("Failed to submit pattern")
			continue
		}
		log.WithFields(logger.Fields{
			"pattern_type":  p.Kind,
			"pattern_value": p.Value,
		}).Info("Submitted pattern")
		learned = append(learned, p)
	}
	return learned
}

// Forget removes a stored embedding so it no longer boosts similar
// transactions. It reports whether the store acknowledged the delete.
func (pl *PatternLearner) Forget(ctx context.Context, id uuid.UUID) (bool, error) {
	if pl.store == nil {
		return false, errors.New(errors.CategoryConfiguration, errors.CodeMissingConfig, "similarity search is not configured").
			WithSuggestion("Set the embeddings API key and the Qdrant host")
	}
	deleted, err := pl.store.DeletePattern(ctx, id)
	if err != nil {
		return false, err
	}
	pl.logger.WithFields(logger.Fields{"pattern_id": id, "deleted": deleted}).Info("Forgot pattern embedding")
	return deleted, nil
}

// ExtractPatterns derives the counterparty, reference and merchant patterns
// of an approved transaction
func ExtractPatterns(tx *models.Transaction, approval Approval) []models.Pattern {
	base := models.Pattern{
		TargetType:  models.TargetAccount,
		TargetID:    approval.AccountID,
		TargetName:  approval.AccountName,
		Description: fmt.Sprintf("Learned from %s", tx.ID),
	}

	var patterns []models.Pattern

	if counterparty := strings.TrimSpace(tx.CounterpartyName); len([]rune(counterparty)) >= 3 {
		p := base
		p.Kind = models.PatternCounterparty
		p.Value = counterparty
		p.Boost = counterpartyGain
		patterns = append(patterns, p)
	}

	if format, ok := ReferenceFormat(tx.PaymentReference); ok {
		p := base
		p.Kind = models.PatternReference
		p.Value = format
		p.IsRegex = true
		p.Boost = referenceGain
		patterns = append(patterns, p)
	}

	if tx.MerchantName != "" {
		p := base
		p.Kind = models.PatternCounterparty
		p.Value = tx.MerchantName
		p.Boost = counterpartyGain
		patterns = append(patterns, p)
	}

	return patterns
}

// ReferenceFormat returns the regular expression of the first known
// numbering convention found in reference
func ReferenceFormat(reference string) (string, bool) {
	if reference == "" {
		return "", false
	}
	for i, re := range referenceMatchers {
		if re.MatchString(reference) {
			return referenceFormats[i], true
		}
	}
	return "", false
}
