package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/errors"
)

// reconcileOptions are the flags of the reconcile command
type reconcileOptions struct {
	transactionFiles  []string
	ofxFiles          []string
	ledgerFile        string
	entity            string
	profileID         int64
	subsidiaries      map[string]string
	startDate         string
	endDate           string
	currency          string
	delimiter         string
	includeReconciled bool
	outputFormat      string
	outputFile        string
	reasons           bool
	unmatchedOnly     bool
	submit            bool
	showProgress      bool
}

var reconcileOpts = &reconcileOptions{}

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match bank transactions against ledger entries",
	Long: `Reconcile matches each bank transaction against the open ledger entries of
its entity's subsidiary and scores the decision.

Each transaction passes through intercompany detection, then the exact,
fuzzy and (when an Anthropic key is configured) LLM tiers. Accepted matches
are boosted by similar approved transactions when similarity search is
configured. Every decision is routed by its final confidence:

  >= 0.95  auto_approve
  >= 0.80  suggest
  >= 0.60  review
  <  0.60  manual

Transactions are grouped by entity. Each entity is reconciled against the
ledger entries of its subsidiary, taken from --subsidiary or the entity
registry. Without --start-date/--end-date the period spans the loaded
transactions.

Examples:
  # CSV export with one or more entities
  reconciler reconcile --transactions bank.csv --ledger gl.csv --entities-file entities.yaml

  # OFX statement for a single entity, JSON report to a file
  reconciler reconcile --ofx statement.ofx --entity "Phygrid Limited" \
    --subsidiary "Phygrid Limited=3" --ledger gl.csv -f json -o report.json

  # Record suggestions for review and show progress
  reconciler reconcile -t bank.csv -l gl.csv --submit --progress

  # Spreadsheet of decisions that need attention
  reconciler reconcile -t bank.csv -l gl.csv --unmatched-only -f xlsx -o review.xlsx`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	flags := reconcileCmd.Flags()
	o := reconcileOpts

	// Input flags
	flags.StringSliceVarP(&o.transactionFiles, "transactions", "t", nil, "bank transaction CSV files")
	flags.StringSliceVar(&o.ofxFiles, "ofx", nil, "OFX/QFX statement files (require --entity)")
	flags.StringVarP(&o.ledgerFile, "ledger", "l", "", "ledger entry CSV export (required)")
	flags.StringVarP(&o.entity, "entity", "e", "", "entity owning OFX files; also limits CSV input to this entity")
	flags.Int64Var(&o.profileID, "profile-id", 0, "bank profile id for OFX files (default: from the registry)")
	flags.StringToStringVar(&o.subsidiaries, "subsidiary", nil, "ledger subsidiary per entity, e.g. \"Phygrid Limited=3\"")
	flags.StringVar(&o.currency, "currency", "", "currency for rows without one")
	flags.StringVar(&o.delimiter, "delimiter", ",", "CSV delimiter: a character, tab or semicolon")
	flags.BoolVar(&o.includeReconciled, "include-reconciled", false, "also match ledger entries already marked reconciled")

	// Period flags
	flags.StringVar(&o.startDate, "start-date", "", "period start (YYYY-MM-DD)")
	flags.StringVar(&o.endDate, "end-date", "", "period end (YYYY-MM-DD)")

	// Output flags
	flags.StringVarP(&o.outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	flags.StringVarP(&o.outputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.BoolVar(&o.reasons, "reasons", false, "include the scoring reasons of each decision")
	flags.BoolVar(&o.unmatchedOnly, "unmatched-only", false, "list only unmatched transactions")
	flags.BoolVar(&o.submit, "submit", false, "record every decision as a suggestion in the database")
	flags.BoolVar(&o.showProgress, "progress", false, "show a progress bar per entity")

	// Pipeline flags
	flags.Int(config.KeyWorkers, reconciler.DefaultConfig().Workers, "transactions processed concurrently")
	flags.Bool(config.KeyNoLLM, false, "disable the LLM tier")
	flags.Duration(config.KeyLedgerCacheTTL, reconciler.DefaultLedgerCacheTTL, "how long loaded ledger entries are reused")

	_ = reconcileCmd.MarkFlagRequired("ledger")

	for _, key := range []string{config.KeyWorkers, config.KeyNoLLM, config.KeyLedgerCacheTTL} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	o := reconcileOpts

	if len(o.transactionFiles) == 0 && len(o.ofxFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "transactions", nil, nil).
			WithSuggestion("Pass --transactions with a CSV export or --ofx with a statement file")
	}
	if len(o.ofxFiles) > 0 && strings.TrimSpace(o.entity) == "" {
		return errors.ValidationError(errors.CodeMissingField, "entity", nil, nil).
			WithSuggestion("OFX statements do not name their entity; pass --entity")
	}

	if err := validateFileExists(o.ledgerFile, "ledger file"); err != nil {
		return err
	}
	for i, f := range o.transactionFiles {
		if err := validateFileExists(f, fmt.Sprintf("transaction file %d", i+1)); err != nil {
			return err
		}
	}
	for i, f := range o.ofxFiles {
		if err := validateFileExists(f, fmt.Sprintf("OFX file %d", i+1)); err != nil {
			return err
		}
	}

	format := reporter.OutputFormat(strings.ToLower(o.outputFormat))
	if !format.IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "output-format", o.outputFormat, nil).
			WithSuggestion("Valid formats: console, json, csv, xlsx")
	}
	if format.IsBinary() && o.outputFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "output-file", nil, nil).
			WithSuggestion("The xlsx format needs --output-file")
	}

	start, err := config.ParseDate(o.startDate)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "start-date", o.startDate, err)
	}
	end, err := config.ParseDate(o.endDate)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "end-date", o.endDate, err)
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return errors.ValidationError(errors.CodeOutOfRange, "start-date", o.startDate,
			fmt.Errorf("start date cannot be after end date"))
	}

	if _, err := config.ParseDelimiter(o.delimiter); err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "delimiter", o.delimiter, err)
	}

	if o.outputFile != "" {
		dir := filepath.Dir(o.outputFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return errors.FileError(errors.CodeFileNotFound, dir, err).
				WithSuggestion("Create the output directory first")
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("input", description)
	}
	file.Close()
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	o := reconcileOpts

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	transactions, err := loadTransactions(ctx, cmd.ErrOrStderr(), a, o)
	if err != nil {
		return err
	}

	requests, err := buildRequests(a, o, transactions)
	if err != nil {
		return err
	}

	ledgerConfig, err := config.CreateLedgerParserConfig(o.delimiter, o.currency, o.includeReconciled)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", o.ledgerFile, err)
	}
	csvLedger, err := parsers.NewCSVLedgerProvider(o.ledgerFile, ledgerConfig)
	if err != nil {
		return err
	}
	ledger := reconciler.NewCachedLedgerProvider(csvLedger, a.settings.LedgerCacheTTL)

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}
	a.ensureCollection(ctx)

	var sink reconciler.SubmissionSink
	if o.submit {
		sink = a.store
	}
	service, err := reconciler.NewService(pipeline, ledger, a.store, sink)
	if err != nil {
		return err
	}

	if o.showProgress {
		for i := range requests {
			requests[i].Progress = newProgressBar(cmd.ErrOrStderr(), requests[i].EntityName, len(requests[i].Transactions))
		}
	}

	results := service.ReconcileAll(ctx, requests)

	if err := writeReport(cmd.OutOrStdout(), o, results); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		printRunSummary(cmd.ErrOrStderr(), results, o.submit)
	}
	return nil
}

// loadTransactions parses every input file. Row errors are reported and
// skipped; a file with too many errors aborts the run.
func loadTransactions(ctx context.Context, w io.Writer, a *app, o *reconcileOptions) ([]*models.Transaction, error) {
	var all []*models.Transaction

	if len(o.transactionFiles) > 0 {
		txConfig, err := config.CreateTransactionParserConfig(o.delimiter, o.currency, o.entity, o.profileID)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transactions", nil, err)
		}
		parser, err := parsers.NewTransactionParser(txConfig)
		if err != nil {
			return nil, err
		}

		for _, path := range o.transactionFiles {
			transactions, stats, err := parser.ParseFile(ctx, path)
			if err != nil {
				return nil, err
			}
			if stats.HasErrors() {
				fmt.Fprintln(w, errors.FormatRowErrors(stats.Errors(), 5))
			}
			if stats.Stopped {
				return nil, errors.New(errors.CategoryParse, errors.CodeInvalidData, "too many invalid rows").
					WithContext("file", path).
					WithContext("errors", stats.ErrorCount()).
					WithSuggestion("Fix the reported rows or check the delimiter and column headers")
			}
			all = append(all, transactions...)
		}
	}

	if len(o.ofxFiles) > 0 {
		profileID := o.profileID
		if entity, ok := a.registry.LookupName(o.entity); ok && profileID == 0 {
			profileID = entity.ProfileID
		}
		parser := parsers.NewOFXParser(o.entity, profileID)
		for _, path := range o.ofxFiles {
			transactions, err := parser.ParseFile(ctx, path)
			if err != nil {
				return nil, err
			}
			all = append(all, transactions...)
		}
	}

	if len(all) == 0 {
		return nil, errors.New(errors.CategoryValidation, errors.CodeMissingField, "no transactions were loaded").
			WithSuggestion("Check that the input files contain transactions")
	}
	return all, nil
}

// buildRequests groups transactions into one request per entity
func buildRequests(a *app, o *reconcileOptions, transactions []*models.Transaction) ([]reconciler.Request, error) {
	start, _ := config.ParseDate(o.startDate)
	end, _ := config.ParseDate(o.endDate)
	end = config.EndOfDay(end)

	names, byEntity := parsers.GroupByEntity(transactions)
	requests := make([]reconciler.Request, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, errors.ValidationError(errors.CodeMissingField, "entity_name", nil, nil).
				WithSuggestion("Add an entity_name column or pass --entity")
		}
		if o.entity != "" && !strings.EqualFold(name, o.entity) {
			continue
		}

		subsidiary, err := config.ResolveSubsidiary(a.registry, o.subsidiaries, name)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "subsidiary", name, err).
				WithSuggestion("Pass --subsidiary \"" + name + "=<id>\" or set subsidiary_id in the entities file")
		}

		reqStart, reqEnd := start, end
		if reqStart.IsZero() || reqEnd.IsZero() {
			first, last := transactionSpan(byEntity[name])
			if reqStart.IsZero() {
				reqStart = first
			}
			if reqEnd.IsZero() {
				reqEnd = config.EndOfDay(last)
			}
		}

		requests = append(requests, reconciler.Request{
			EntityName:   name,
			SubsidiaryID: subsidiary,
			Start:        reqStart,
			End:          reqEnd,
			Transactions: byEntity[name],
		})
	}

	if len(requests) == 0 {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "entity", o.entity,
			fmt.Errorf("no transactions belong to entity %q", o.entity))
	}
	return requests, nil
}

// transactionSpan returns the first and last calendar day of transactions
func transactionSpan(transactions []*models.Transaction) (time.Time, time.Time) {
	dates := make([]time.Time, 0, len(transactions))
	for _, tx := range transactions {
		dates = append(dates, tx.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	first, last := dates[0], dates[len(dates)-1]
	return truncateDay(first), truncateDay(last)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func newProgressBar(w io.Writer, entity string, total int) reconciler.ProgressFunc {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Reconciling "+entity),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return func(done, total int) {
		_ = bar.Add(1)
	}
}

func writeReport(stdout io.Writer, o *reconcileOptions, results []*reconciler.RunResult) error {
	reportConfig, err := config.CreateReportConfig(o.outputFormat, o.reasons, o.unmatchedOnly)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", o.outputFormat, err)
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}
	if o.outputFile != "" {
		return generator.WriteReportFile(results, o.outputFile)
	}
	return generator.GenerateReportSafely(results, stdout)
}

func printRunSummary(w io.Writer, results []*reconciler.RunResult, submitted bool) {
	s := reporter.Summarize(results)
	fmt.Fprintf(w, "\nReconciliation completed for %d entities.\n", s.Entities)
	fmt.Fprintf(w, "Processed %d transactions: %d exact, %d fuzzy, %d LLM, %d unmatched.\n",
		s.TransactionsProcessed, s.ExactMatches, s.FuzzyMatches, s.LLMMatches, s.Unmatched)
	fmt.Fprintf(w, "Auto-approved %d, for review %d.\n", s.AutoApproved, s.SubmittedForReview)
	if submitted {
		fmt.Fprintf(w, "Suggestions recorded in %s.\n", viper.GetString(config.KeyDatabase))
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "%d transaction(s) failed; see the report for details.\n", s.Errors)
	}
	fmt.Fprintf(w, "Processing time: %v\n", s.Duration)
}
