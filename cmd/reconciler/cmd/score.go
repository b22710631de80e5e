package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

type scoreOptions struct {
	matchType    string
	intercompany bool
	boost        string
	repeat       bool
	fxVariance   string
	drift        int
	candidates   int
}

var scoreOpts = &scoreOptions{}

// scoreCmd explains how a decision would be scored
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Explain the confidence score of a match",
	Long: `Score computes the final confidence of a match type under the given
signals and prints every adjustment together with the routing action.

Examples:
  reconciler score --type exact_all
  reconciler score --type fuzzy_high --intercompany --boost 0.10
  reconciler score --type llm_confident --fx-variance 3.5 --drift 7 --candidates 3`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	flags := scoreCmd.Flags()
	o := scoreOpts

	flags.StringVar(&o.matchType, "type", "", "match type, e.g. exact_all, fuzzy_high, llm_confident (required)")
	flags.BoolVar(&o.intercompany, "intercompany", false, "the transaction is intercompany")
	flags.StringVar(&o.boost, "boost", "", "pattern boost, e.g. 0.10")
	flags.BoolVar(&o.repeat, "repeat", false, "the counterparty has been matched before")
	flags.StringVar(&o.fxVariance, "fx-variance", "", "FX variance in percent")
	flags.IntVar(&o.drift, "drift", 0, "days between bank and ledger dates")
	flags.IntVar(&o.candidates, "candidates", 0, "number of candidate ledger entries")

	_ = scoreCmd.MarkFlagRequired("type")
}

func runScore(cmd *cobra.Command, args []string) error {
	o := scoreOpts

	matchType, ok := models.ParseMatchType(o.matchType)
	if !ok {
		return errors.ValidationError(errors.CodeInvalidValue, "type", o.matchType, nil).
			WithSuggestion("Valid types: " + strings.Join(matchTypeNames(), ", "))
	}

	sc := matcher.ScoreContext{
		Intercompany:       o.intercompany,
		RepeatCounterparty: o.repeat,
		DateDriftDays:      o.drift,
		CandidateCount:     o.candidates,
	}
	var err error
	if sc.PatternBoost, err = optionalDecimal("boost", o.boost); err != nil {
		return err
	}
	if sc.FXVariancePercent, err = optionalDecimal("fx-variance", o.fxVariance); err != nil {
		return err
	}

	score := matcher.NewConfidenceScorer().Score(matchType, sc)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Match type: %s\n", matchType)
	fmt.Fprintf(out, "Confidence: %s\n", score.Value.StringFixed(2))
	fmt.Fprintf(out, "Action:     %s\n", score.Action)
	fmt.Fprintln(out, "\nReasons:")
	for _, reason := range score.Reasons {
		fmt.Fprintf(out, "  - %s\n", reason)
	}
	return nil
}

func optionalDecimal(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidValue, field, s, err)
	}
	return &d, nil
}

func matchTypeNames() []string {
	names := make([]string, len(models.AllMatchTypes))
	for i, t := range models.AllMatchTypes {
		names[i] = string(t)
	}
	return names
}
