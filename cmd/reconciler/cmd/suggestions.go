package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bank-reconciliation-service/pkg/errors"
)

var (
	suggestionsLimit int
	suggestionsJSON  bool
)

// suggestionsCmd lists the decisions recorded by "reconcile --submit"
var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "List recorded match suggestions",
	Long: `Suggestions prints the most recently recorded decisions awaiting review,
newest first.

Examples:
  reconciler suggestions
  reconciler suggestions --limit 20 --json`,
	Args: cobra.NoArgs,
	RunE: runSuggestions,
}

func init() {
	rootCmd.AddCommand(suggestionsCmd)
	suggestionsCmd.Flags().IntVar(&suggestionsLimit, "limit", 50, "maximum number of suggestions")
	suggestionsCmd.Flags().BoolVar(&suggestionsJSON, "json", false, "print JSON instead of a table")
}

func runSuggestions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	suggestions, err := a.store.ListSuggestions(ctx, suggestionsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if suggestionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(suggestions); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "encode suggestions", err)
		}
		return nil
	}

	if len(suggestions) == 0 {
		fmt.Fprintln(out, "No suggestions recorded.")
		return nil
	}

	t := newTable(out, "Transaction", "Entity", "Date", "Amount", "Ledger", "Type", "Conf", "Action", "IC")
	for _, s := range suggestions {
		ledger := s.LedgerTransactionID
		if s.LedgerLineID > 0 {
			ledger = fmt.Sprintf("%s/%d", ledger, s.LedgerLineID)
		}
		ic := ""
		if s.IsIntercompany {
			ic = s.CounterpartyEntity
			if ic == "" {
				ic = "yes"
			}
		}
		t.Row(
			s.TransactionID,
			s.EntityName,
			s.TransactionDate.Format("2006-01-02"),
			strings.TrimSpace(s.Amount.StringFixed(2)+" "+s.Currency),
			ledger,
			string(s.MatchType),
			s.Confidence.StringFixed(2),
			string(s.Action),
			ic,
		)
	}
	return renderTable(out, t)
}
