package reconciler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Run processes every transaction of batch against its snapshot on a bounded
// worker pool. A failure in one transaction, including a panic, is recorded
// and never stops the others. When sink is non-nil every result is submitted
// to it, unmatched ones included so they reach manual review.
func (p *Pipeline) Run(ctx context.Context, batch Batch, sink SubmissionSink) *RunResult {
	start := time.Now()
	total := len(batch.Transactions)

	result := &RunResult{
		RunID:                 uuid.NewString(),
		EntityName:            batch.EntityName,
		PeriodStart:           batch.PeriodStart,
		PeriodEnd:             batch.PeriodEnd,
		TransactionsProcessed: total,
		Outcomes:              make([]Outcome, total),
	}

	log := p.logger.WithFields(logger.Fields{
		"run_id": result.RunID,
		"entity": batch.EntityName,
	})
	log.WithField("transactions", total).Info("Starting reconciliation batch")

	snapshot := batch.Snapshot
	if snapshot == nil {
		snapshot = NewSnapshot(nil, nil)
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "reconcile " + batch.EntityName,
		Total:       int64(total),
		LogInterval: p.batch.ProgressInterval,
		Logger:      log,
	})

	workers := p.batch.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}

	var done atomic.Int64
	var g errgroup.Group
	g.SetLimit(workers)

	for i, tx := range batch.Transactions {
		g.Go(func() error {
			outcome := &result.Outcomes[i]
			outcome.Transaction = tx
			p.processOne(ctx, outcome, snapshot, sink)

			tracker.Increment(outcome.Err != "")
			if batch.Progress != nil {
				batch.Progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Counters are gathered after the pool drains so errors keep input order
	for i := range result.Outcomes {
		outcome := &result.Outcomes[i]
		if outcome.Err != "" {
			result.Errors = append(result.Errors, outcome.Err)
		}
		if outcome.Result != nil {
			result.record(outcome.Result)
		}
	}

	result.Duration = time.Since(start)
	stats := tracker.Complete()
	log.WithFields(logger.Fields{
		"exact":         result.ExactMatches,
		"fuzzy":         result.FuzzyMatches,
		"llm":           result.LLMMatches,
		"unmatched":     result.Unmatched,
		"auto_approved": result.AutoApproved,
		"for_review":    result.SubmittedForReview,
		"errors":        len(result.Errors),
		"rate":          fmt.Sprintf("%.1f/s", stats.Rate),
	}).Info("Reconciliation batch completed")
	return result
}

// processOne fills outcome for a single transaction, converting a panic into
// a recorded error
func (p *Pipeline) processOne(ctx context.Context, outcome *Outcome, snapshot *Snapshot, sink SubmissionSink) {
	tx := outcome.Transaction
	defer func() {
		if r := recover(); r != nil {
			err := errors.FromPanic("process "+tx.ID, r)
			p.logger.WithError(err).WithField("transaction_id", tx.ID).Error("Transaction processing panicked")
			outcome.Result = nil
			outcome.Err = fmt.Sprintf("%s: %v", tx.ID, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome.Err = fmt.Sprintf("%s: %v", tx.ID, err)
		return
	}

	outcome.Result = p.Process(ctx, tx, snapshot)

	if sink == nil {
		return
	}
	id, err := sink.Submit(ctx, tx, outcome.Result)
	if err != nil {
		p.logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to submit suggestion")
		outcome.Err = fmt.Sprintf("Submit failed for %s: %v", tx.ID, err)
		return
	}
	outcome.SuggestionID = id
}
