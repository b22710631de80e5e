package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/fixtures"
	"bank-reconciliation-service/pkg/errors"
)

type generateOptions struct {
	outputDir  string
	entity     string
	subsidiary string
	count      int
	start      string
	currency   string
	seed       int64
}

var generateOpts = &generateOptions{}

// generateCmd writes synthetic exports for trying out the pipeline
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic bank and ledger exports",
	Long: `Generate writes bank_transactions.csv and ledger_entries.csv for one entity.
Transactions cycle through four pairings: a same-day entry named in the
payment reference, an amount match with a one-day lag, an amount and
counterparty match with a three-day lag, and no ledger entry at all.

Examples:
  reconciler generate --output-dir ./sample --count 200 --seed 7
  reconciler generate --entity "Fendops Kft" --subsidiary 7 --currency HUF`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	o := generateOpts
	flags := generateCmd.Flags()
	flags.StringVar(&o.outputDir, "output-dir", "generated", "directory for the generated files")
	flags.StringVar(&o.entity, "entity", "Phygrid Limited", "entity owning the transactions")
	flags.StringVar(&o.subsidiary, "subsidiary", "", "ledger subsidiary (default: from the registry)")
	flags.IntVar(&o.count, "count", 100, "number of bank transactions")
	flags.StringVar(&o.start, "start-date", "2026-01-01", "first day of the generated period (YYYY-MM-DD)")
	flags.StringVar(&o.currency, "currency", "EUR", "currency of the generated rows")
	flags.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed for reproducible output")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	o := generateOpts

	start, err := config.ParseDate(o.start)
	if err != nil || start.IsZero() {
		return errors.ValidationError(errors.CodeInvalidDate, "start-date", o.start, err)
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}

	entity, ok := a.registry.LookupName(o.entity)
	if !ok {
		return errors.ValidationError(errors.CodeInvalidValue, "entity", o.entity, nil).
			WithSuggestion("Use a name listed by 'reconciler entities'")
	}
	var overrides map[string]string
	if o.subsidiary != "" {
		overrides = map[string]string{entity.Name: o.subsidiary}
	}
	if entity.SubsidiaryID, err = config.ResolveSubsidiary(a.registry, overrides, entity.Name); err != nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "subsidiary", entity.Name, err).
			WithSuggestion("Pass --subsidiary")
	}

	g := &fixtures.Generator{
		Entity:   entity,
		Count:    o.count,
		Start:    start,
		Currency: o.currency,
		Seed:     o.seed,
	}
	ds, err := g.Generate()
	if err != nil {
		return err
	}
	txPath, ledgerPath, err := ds.WriteFiles(o.outputDir)
	if err != nil {
		return err
	}

	first, last := ds.Period()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %d transactions to %s\n", len(ds.Transactions), txPath)
	fmt.Fprintf(out, "Wrote %d ledger entries to %s\n", len(ds.Ledger), ledgerPath)
	fmt.Fprintf(out, "Seed used: %d\n\n", o.seed)
	fmt.Fprintf(out, "Reconcile with:\n  reconciler reconcile -t %s -l %s --subsidiary %q --start-date %s --end-date %s --no-llm\n",
		txPath, ledgerPath, entity.Name+"="+entity.SubsidiaryID, first.Format("2006-01-02"), last.Format("2006-01-02"))
	return nil
}
