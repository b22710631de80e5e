package cmd

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

// patternsCmd lists the active patterns
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage the patterns that boost matches",
	Long: `Patterns lists the active rules of the pattern store. Rules are learned from
approvals ("reconciler learn") or added by hand.

Examples:
  reconciler patterns
  reconciler patterns add --type counterparty --value "GitHub" --account 6100 --boost 0.10
  reconciler patterns add --type reference --value '^INV-\d+$' --regex --account 1200
  reconciler patterns deactivate 4`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

type patternAddOptions struct {
	kind        string
	value       string
	regex       bool
	targetType  string
	account     string
	accountName string
	boost       string
	autoApprove bool
	description string
}

var patternAddOpts = &patternAddOptions{}

var patternsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or reactivate a pattern",
	Args:  cobra.NoArgs,
	RunE:  runPatternsAdd,
}

var patternsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop a pattern from boosting future matches",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsDeactivate,
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsAddCmd, patternsDeactivateCmd)

	o := patternAddOpts
	flags := patternsAddCmd.Flags()
	flags.StringVar(&o.kind, "type", "", "field the pattern inspects: counterparty, reference, description (required)")
	flags.StringVar(&o.value, "value", "", "text or regular expression to match (required)")
	flags.BoolVar(&o.regex, "regex", false, "treat --value as a regular expression")
	flags.StringVar(&o.targetType, "target-type", string(models.TargetAccount), "target type: account, vendor, customer")
	flags.StringVar(&o.account, "account", "", "ledger target id (required)")
	flags.StringVar(&o.accountName, "account-name", "", "ledger target name")
	flags.StringVar(&o.boost, "boost", "0.10", "confidence boost in [0, 1]")
	flags.BoolVar(&o.autoApprove, "auto-approve", false, "mark matches of this pattern for auto-approval")
	flags.StringVar(&o.description, "description", "", "free text note")

	for _, name := range []string{"type", "value", "account"} {
		_ = patternsAddCmd.MarkFlagRequired(name)
	}
}

func runPatterns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	patterns, err := a.store.ActivePatterns(ctx)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No active patterns.")
		return nil
	}

	t := newTable(cmd.OutOrStdout(), "ID", "Type", "Value", "Target", "Boost", "Auto")
	for _, p := range patterns {
		value := p.Value
		if p.IsRegex {
			value = "/" + value + "/"
		}
		target := p.TargetID
		if p.TargetName != "" {
			target += " " + p.TargetName
		}
		auto := ""
		if p.AutoApprove {
			auto = "yes"
		}
		t.Row(p.ID, string(p.Kind), value, target, p.Boost.StringFixed(2), auto)
	}
	return renderTable(cmd.OutOrStdout(), t)
}

func runPatternsAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	o := patternAddOpts

	boost, err := decimal.NewFromString(o.boost)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "boost", o.boost, err)
	}
	if o.regex {
		if _, err := regexp.Compile(o.value); err != nil {
			return errors.ValidationError(errors.CodeInvalidFormat, "value", o.value, err).
				WithSuggestion("Check the regular expression syntax")
		}
	}

	p := models.Pattern{
		Kind:        models.PatternKind(o.kind),
		Value:       o.value,
		IsRegex:     o.regex,
		TargetType:  models.TargetType(o.targetType),
		TargetID:    o.account,
		TargetName:  o.accountName,
		AutoApprove: o.autoApprove,
		Boost:       boost,
		Description: o.description,
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SubmitPattern(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pattern %s %q -> %s saved\n", p.Kind, p.Value, p.TargetID)
	return nil
}

func runPatternsDeactivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.DeactivatePattern(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pattern %s deactivated\n", args[0])
	return nil
}
