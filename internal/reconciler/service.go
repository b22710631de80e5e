package reconciler

import (
	"context"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// PatternSource loads the active learned and curated patterns
type PatternSource interface {
	ActivePatterns(ctx context.Context) ([]models.Pattern, error)
}

// Service reconciles one entity per request: it loads the ledger and the
// patterns, builds the batch snapshot and runs the pipeline over it
type Service struct {
	pipeline     *Pipeline
	ledger       LedgerProvider
	patterns     PatternSource
	sink         SubmissionSink
	preprocessor *DataPreprocessor
	logger       logger.Logger
	now          func() time.Time
}

// NewService creates a reconciliation service. patterns and sink may be nil:
// the batch then runs without patterns and without submitting results.
func NewService(pipeline *Pipeline, ledger LedgerProvider, patterns PatternSource, sink SubmissionSink) (*Service, error) {
	if pipeline == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "pipeline", nil, nil)
	}
	if ledger == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "ledger_provider", nil, nil).
			WithSuggestion("provide a ledger entry source such as a CSV file")
	}
	return &Service{
		pipeline:     pipeline,
		ledger:       ledger,
		patterns:     patterns,
		sink:         sink,
		preprocessor: NewDataPreprocessor(pipeline.batch.Preprocessing),
		logger:       logger.GetGlobalLogger().WithComponent("reconciliation_service"),
		now:          time.Now,
	}, nil
}

// Reconcile runs one entity's transactions for the requested period. Only
// request and ledger failures are returned as errors; per-transaction
// problems are recorded in the result.
func (s *Service) Reconcile(ctx context.Context, req Request) (*RunResult, error) {
	req.Normalize(s.now())
	if err := req.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "reconciliation_request", req.EntityName, err)
	}

	log := s.logger.WithFields(logger.Fields{
		"entity":     req.EntityName,
		"subsidiary": req.SubsidiaryID,
		"start":      req.Start.Format("2006-01-02"),
		"end":        req.End.Format("2006-01-02"),
	})

	transactions, txStats, err := s.preprocessor.PreprocessTransactions(req.Transactions, req.Start, req.End)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeProcessingError, "transaction preprocessing", err)
	}
	log.WithFields(logger.Fields{
		"transactions": len(transactions),
		"removed":      txStats.RecordsRemoved,
	}).Info("Processing transactions")

	if len(transactions) == 0 {
		return &RunResult{
			EntityName:  req.EntityName,
			PeriodStart: req.Start,
			PeriodEnd:   req.End,
		}, nil
	}

	var entries []models.LedgerEntry
	err = logger.TimedOperation("ledger fetch", log, func() error {
		var fetchErr error
		entries, fetchErr = s.ledger.LedgerEntries(ctx, req.SubsidiaryID, req.Start, req.End)
		return fetchErr
	})
	if err != nil {
		// A categorised provider error keeps its category so file and parse
		// problems reach the caller as such
		return nil, errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeLedgerFetch,
			"failed to fetch ledger entries for subsidiary "+req.SubsidiaryID)
	}
	entries, _, err = s.preprocessor.PreprocessLedgerEntries(entries)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeLedgerFetch, "subsidiary "+req.SubsidiaryID, err)
	}
	log.WithField("ledger_entries", len(entries)).Info("Loaded ledger entries for matching")

	batch := Batch{
		EntityName:   req.EntityName,
		PeriodStart:  req.Start,
		PeriodEnd:    req.End,
		Transactions: transactions,
		Snapshot:     NewSnapshot(entries, s.activePatterns(ctx)),
		Progress:     req.Progress,
	}
	return s.pipeline.Run(ctx, batch, s.sink), nil
}

// ReconcileAll runs each request in turn. A request that cannot start still
// gets a result carrying its error.
func (s *Service) ReconcileAll(ctx context.Context, reqs []Request) []*RunResult {
	results := make([]*RunResult, 0, len(reqs))
	for _, req := range reqs {
		result, err := s.Reconcile(ctx, req)
		if err != nil {
			s.logger.WithError(err).WithField("entity", req.EntityName).Error("Reconciliation failed")
			result = &RunResult{
				EntityName:  req.EntityName,
				PeriodStart: req.Start,
				PeriodEnd:   req.End,
				Errors:      []string{err.Error()},
			}
		}
		results = append(results, result)
	}
	return results
}

// activePatterns loads the patterns, degrading to none when the source fails
func (s *Service) activePatterns(ctx context.Context) []models.Pattern {
	if s.patterns == nil {
		return nil
	}
	patterns, err := s.patterns.ActivePatterns(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch patterns")
		return nil
	}
	return patterns
}
