package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

// SystemPrompt instructs the reasoning service how to answer
const SystemPrompt = `You are a financial reconciliation assistant. Your job is to match bank transactions with GL entries.

Given a bank transaction and a list of potential GL entry matches, determine:
1. Which GL entry (if any) is the best match
2. Your confidence level (0.0 to 1.0)
3. A brief explanation of your reasoning

Consider:
- Amount matching (exact or within FX tolerance)
- Date proximity
- Payment references and invoice numbers (may be abbreviated or formatted differently)
- Company name variations
- Transaction descriptions

Respond in JSON format:
{
  "match_index": <index of best match, or -1 if no match>,
  "confidence": <0.0 to 1.0>,
  "explanation": "<brief explanation>",
  "inferred_reference": "<any invoice/reference number you extracted, or null>"
}`

// DecisionClient sends one prompt to a reasoning service and returns the
// text of its reply
type DecisionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Decision is the structured answer expected from the reasoning service
type Decision struct {
	MatchIndex        int     `json:"match_index"`
	Confidence        float64 `json:"confidence"`
	Explanation       string  `json:"explanation"`
	InferredReference *string `json:"inferred_reference"`
}

// LLMMatcher is the inference tier. It describes a bounded candidate list to
// a reasoning service and maps the reply to a match. Every failure degrades
// to "no match".
type LLMMatcher struct {
	client DecisionClient
	config *LLMConfig
	scorer *ConfidenceScorer
	logger logger.Logger
}

// NewLLMMatcher creates the inference tier. A nil client means no credential
// is configured and the tier declines every transaction.
func NewLLMMatcher(client DecisionClient, config *LLMConfig) *LLMMatcher {
	if config == nil {
		config = DefaultLLMConfig()
	}
	return &LLMMatcher{
		client: client,
		config: config,
		scorer: NewConfidenceScorer(),
		logger: logger.GetGlobalLogger().WithComponent("llm_matcher"),
	}
}

// Enabled reports whether the tier will call the reasoning service
func (lm *LLMMatcher) Enabled() bool {
	return lm != nil && lm.config.Enabled && lm.client != nil
}

// Match asks the reasoning service to pick among the first MaxCandidates
// candidates. It returns nil for no candidates, a missing credential, an
// out-of-range index, or any call or decode failure.
func (lm *LLMMatcher) Match(ctx context.Context, tx *models.Transaction, candidates []models.LedgerEntry) *models.MatchResult {
	if len(candidates) == 0 {
		return nil
	}
	if lm.client == nil {
		lm.logger.Warn("LLM matching disabled: no API key configured")
		return nil
	}

	if len(candidates) > lm.config.MaxCandidates {
		candidates = candidates[:lm.config.MaxCandidates]
	}
	prompt := BuildPrompt(tx, candidates)

	callCtx, cancel := context.WithTimeout(ctx, lm.config.Timeout)
	defer cancel()

	reply, err := lm.client.Complete(callCtx, SystemPrompt, prompt)
	if err != nil {
		lm.logger.WithError(err).WithField("transaction_id", tx.ID).Error("LLM matching failed")
		return nil
	}

	decision, err := ParseDecision(reply)
	if err != nil {
		lm.logger.WithError(err).WithField("transaction_id", tx.ID).Error("LLM matching failed")
		return nil
	}
	return lm.toResult(decision, candidates)
}

func (lm *LLMMatcher) toResult(d *Decision, candidates []models.LedgerEntry) *models.MatchResult {
	if d.MatchIndex < 0 || d.MatchIndex >= len(candidates) {
		return nil
	}

	confidence := lm.scorer.Clamp(decimal.NewFromFloat(d.Confidence).Round(2))
	matchType := models.MatchLLMUncertain
	if confidence.GreaterThanOrEqual(lm.config.ConfidentThreshold) {
		matchType = models.MatchLLMConfident
	}

	reasons := []string{"llm_match"}
	if d.InferredReference != nil && *d.InferredReference != "" {
		reasons = append(reasons, "inferred_reference:"+*d.InferredReference)
	}

	result := &models.MatchResult{
		MatchType:   matchType,
		Confidence:  confidence,
		Reasons:     reasons,
		Explanation: d.Explanation,
	}
	return result.WithCandidate(&candidates[d.MatchIndex])
}

// BuildPrompt describes the transaction and the numbered candidates
func BuildPrompt(tx *models.Transaction, candidates []models.LedgerEntry) string {
	var b strings.Builder

	b.WriteString("Bank Transaction:\n")
	fmt.Fprintf(&b, "- Reference: %s\n", tx.ID)
	fmt.Fprintf(&b, "- Date: %s\n", tx.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Amount: %s %s\n", tx.Amount.StringFixed(2), tx.Currency)
	fmt.Fprintf(&b, "- Type: %s\n", tx.Kind)
	fmt.Fprintf(&b, "- Description: %s\n", orNA(tx.Description))
	fmt.Fprintf(&b, "- Payment Reference: %s\n", orNA(tx.PaymentReference))
	fmt.Fprintf(&b, "- Counterparty: %s", orNA(tx.CounterpartyName))
	if tx.FromAmount != nil && !tx.FromAmount.IsZero() {
		fmt.Fprintf(&b, "\n- Original Amount: %s %s", tx.FromAmount.StringFixed(2), tx.FromCurrency)
		rate := "N/A"
		if tx.ExchangeRate != nil {
			rate = tx.ExchangeRate.String()
		}
		fmt.Fprintf(&b, "\n- Exchange Rate: %s", rate)
	}

	b.WriteString("\nPotential GL Entry Matches:\n")
	for i, entry := range candidates {
		fmt.Fprintf(&b, "\n[%d] %s\n", i, entry.TransactionID)
		fmt.Fprintf(&b, "    - Date: %s\n", entry.Date.Format("2006-01-02"))
		fmt.Fprintf(&b, "    - Amount: %s %s\n", entry.Amount.StringFixed(2), entry.Currency)
		fmt.Fprintf(&b, "    - Type: %s\n", entry.Type)
		fmt.Fprintf(&b, "    - Account: %s\n", entry.AccountName)
		fmt.Fprintf(&b, "    - Memo: %s\n", orNA(entry.Memo))
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// ParseDecision extracts the JSON decision from a reply, unwrapping a
// markdown code fence when present. A missing match_index means no match.
func ParseDecision(reply string) (*Decision, error) {
	content := reply
	if _, after, ok := strings.Cut(content, "```json"); ok {
		content, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(content, "```"); ok {
		content, _, _ = strings.Cut(after, "```")
	}
	content = strings.TrimSpace(content)

	decision := &Decision{MatchIndex: -1}
	if err := json.Unmarshal([]byte(content), decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision %q: %w", truncate(content, 120), err)
	}
	return decision, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
