package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bank-reconciliation-service/internal/learning"
	"bank-reconciliation-service/pkg/errors"
)

type learnOptions struct {
	transactionID string
	accountID     string
	accountName   string
}

var learnOpts = &learnOptions{}

// learnCmd feeds an approved suggestion back into the pattern stores
var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn patterns from an approved suggestion",
	Long: `Learn records the reviewer's approval of a stored suggestion. The
transaction is embedded into the similarity store (when configured) and its
counterparty, reference format and merchant are saved as patterns that boost
future matches.

Examples:
  reconciler learn --transaction-id TX-1001
  reconciler learn --transaction-id TX-1001 --account 6100 --account-name "Software subscriptions"`,
	Args: cobra.NoArgs,
	RunE: runLearn,
}

var learnForgetCmd = &cobra.Command{
	Use:   "forget <embedding-id>",
	Short: "Remove a learned embedding from the similarity store",
	Long: `Forget deletes one stored embedding, for example after an approval was
given by mistake. The id is the pattern_id logged by 'reconciler learn'.`,
	Args: cobra.ExactArgs(1),
	RunE: runLearnForget,
}

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.AddCommand(learnForgetCmd)
	flags := learnCmd.Flags()
	flags.StringVar(&learnOpts.transactionID, "transaction-id", "", "bank transaction id of the approved suggestion (required)")
	flags.StringVar(&learnOpts.accountID, "account", "", "ledger account the reviewer chose (default: the suggested account)")
	flags.StringVar(&learnOpts.accountName, "account-name", "", "name of --account")
	_ = learnCmd.MarkFlagRequired("transaction-id")
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	o := learnOpts

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sg, err := a.store.Suggestion(ctx, o.transactionID)
	if err != nil {
		return err
	}

	approval := learning.Approval{
		LedgerTransactionID: sg.LedgerTransactionID,
		AccountID:           sg.SuggestedAccountID,
		AccountName:         sg.SuggestedAccountName,
		MatchType:           sg.MatchType,
	}
	if o.accountID != "" {
		approval.AccountID = o.accountID
		approval.AccountName = o.accountName
	}
	if approval.AccountID == "" {
		return errors.ValidationError(errors.CodeMissingField, "account", nil, nil).
			WithSuggestion("The suggestion has no account; pass --account")
	}

	tx := sg.Transaction()

	a.ensureCollection(ctx)
	learned := a.learner.Learn(ctx, tx, approval)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Learned %d pattern(s) from %s -> %s\n", len(learned), tx.ID, approval.AccountID)
	for _, p := range learned {
		fmt.Fprintf(out, "  %-12s %s\n", p.Kind, p.Value)
	}
	return nil
}

func runLearnForget(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "embedding-id", args[0], err)
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}

	deleted, err := a.learner.Forget(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.New(errors.CategoryStorage, errors.CodeNotFound, "similarity store did not delete "+id.String())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot embedding %s\n", id)
	return nil
}
