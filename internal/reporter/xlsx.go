package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bank-reconciliation-service/internal/reconciler"
)

const (
	summarySheet   = "Summary"
	decisionsSheet = "Decisions"
)

// generateXLSXReport writes a workbook with a per-entity summary sheet and a
// decisions sheet sharing the CSV columns
func (rg *ReportGenerator) generateXLSXReport(results []*reconciler.RunResult, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if _, err := f.NewSheet(decisionsSheet); err != nil {
		return fmt.Errorf("failed to create decisions sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := rg.writeSummarySheet(f, results, headerStyle); err != nil {
		return err
	}
	if err := rg.writeDecisionsSheet(f, results, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

var summaryHeaders = []interface{}{
	"Entity", "Run_ID", "Period_Start", "Period_End", "Transactions",
	"Exact", "Fuzzy", "LLM", "Pattern", "Unmatched",
	"Auto_Approved", "For_Review", "Errors", "Match_Rate",
}

func (rg *ReportGenerator) writeSummarySheet(f *excelize.File, results []*reconciler.RunResult, headerStyle int) error {
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeaders); err != nil {
		return fmt.Errorf("failed to write summary headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(summaryHeaders), 1)
	if err := f.SetCellStyle(summarySheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, r := range results {
		values := []interface{}{
			r.EntityName, r.RunID, r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"),
			r.TransactionsProcessed, r.ExactMatches, r.FuzzyMatches, r.LLMMatches, r.PatternMatches,
			r.Unmatched, r.AutoApproved, r.SubmittedForReview, len(r.Errors), r.MatchRate(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary for %s: %w", r.EntityName, err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 28)
}

func (rg *ReportGenerator) writeDecisionsSheet(f *excelize.File, results []*reconciler.RunResult, headerStyle int) error {
	headers := make([]interface{}, len(csvHeaders))
	for i, h := range csvHeaders {
		headers[i] = h
	}
	if err := f.SetSheetRow(decisionsSheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write decision headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(decisionsSheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, r := range rg.rows(results) {
		rec := rg.record(r)
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			values[j] = v
		}
		// Numeric amount and confidence so spreadsheet formulas work
		values[3], _ = r.Transaction.Amount.Float64()
		if r.Result != nil {
			values[9], _ = r.Result.Confidence.Float64()
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(decisionsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write decision for %s: %w", r.Transaction.ID, err)
		}
	}
	return f.SetColWidth(decisionsSheet, "A", "B", 24)
}
