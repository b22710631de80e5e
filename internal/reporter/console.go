package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
)

// consoleStyles holds the styles of one console rendering. Styles come from a
// renderer bound to the writer so redirected output carries no escape codes.
type consoleStyles struct {
	title  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	muted  lipgloss.Style
	border lipgloss.Style
}

func newConsoleStyles(w io.Writer, useColors bool) consoleStyles {
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	if !useColors {
		return consoleStyles{
			title: plain.Bold(true), header: plain.Bold(true), label: plain,
			good: plain, warn: plain, bad: plain, muted: plain, border: plain,
		}
	}
	return consoleStyles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header: r.NewStyle().Bold(true),
		label:  r.NewStyle().Foreground(lipgloss.Color("8")),
		good:   r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		bad:    r.NewStyle().Foreground(lipgloss.Color("9")),
		muted:  r.NewStyle().Faint(true),
		border: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// actionStyle colours a decision by how much human attention it needs
func (s consoleStyles) actionStyle(action models.Action) lipgloss.Style {
	switch action {
	case models.ActionAutoApprove:
		return s.good
	case models.ActionSuggest, models.ActionReview:
		return s.warn
	default:
		return s.bad
	}
}

// generateConsoleReport prints the aggregate summary, each entity's run and
// its decisions
func (rg *ReportGenerator) generateConsoleReport(results []*reconciler.RunResult, writer io.Writer) error {
	styles := newConsoleStyles(writer, rg.config.UseColors)
	var b strings.Builder

	b.WriteString(styles.title.Render("BANK RECONCILIATION REPORT"))
	b.WriteString("\n\n")
	rg.printSummary(&b, styles, Summarize(results))

	for _, result := range results {
		b.WriteString("\n")
		rg.printRun(&b, styles, result)
	}

	_, err := io.WriteString(writer, b.String())
	return err
}

func (rg *ReportGenerator) printSummary(b *strings.Builder, styles consoleStyles, s Summary) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.border).
		Headers("Metric", "Count", "Share").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	total := s.TransactionsProcessed
	add := func(name string, n int) {
		t.Row(name, fmt.Sprintf("%d", n), fmt.Sprintf("%.1f%%", percentage(n, total)))
	}
	t.Row("Entities", fmt.Sprintf("%d", s.Entities), "")
	t.Row("Transactions", fmt.Sprintf("%d", total), "")
	add("Exact matches", s.ExactMatches)
	add("Fuzzy matches", s.FuzzyMatches)
	add("LLM matches", s.LLMMatches)
	add("Pattern matches", s.PatternMatches)
	add("Unmatched", s.Unmatched)
	add("Auto-approved", s.AutoApproved)
	add("For review", s.SubmittedForReview)
	add("Intercompany", s.Intercompany)

	b.WriteString(t.Render())
	b.WriteString("\n")

	rate := fmt.Sprintf("Match rate: %.1f%%", s.MatchRate*100)
	switch {
	case s.MatchRate >= 0.9:
		rate = styles.good.Render(rate)
	case s.MatchRate >= 0.5:
		rate = styles.warn.Render(rate)
	default:
		rate = styles.bad.Render(rate)
	}
	fmt.Fprintf(b, "%s   %s\n", rate, styles.muted.Render("Duration: "+s.Duration.Round(time.Millisecond).String()))
	if s.Errors > 0 {
		b.WriteString(styles.bad.Render(fmt.Sprintf("%d transaction(s) failed", s.Errors)))
		b.WriteString("\n")
	}
}

func (rg *ReportGenerator) printRun(b *strings.Builder, styles consoleStyles, result *reconciler.RunResult) {
	fmt.Fprintf(b, "%s %s\n", styles.header.Render(result.EntityName),
		styles.muted.Render(fmt.Sprintf("%s to %s  run %s",
			result.PeriodStart.Format("2006-01-02"), result.PeriodEnd.Format("2006-01-02"), result.RunID)))
	fmt.Fprintf(b, "%s %d   %s %d   %s %d   %s %.1f%%\n",
		styles.label.Render("processed"), result.TransactionsProcessed,
		styles.label.Render("matched"), result.TransactionsProcessed-result.Unmatched,
		styles.label.Render("unmatched"), result.Unmatched,
		styles.label.Render("rate"), result.MatchRate()*100)

	rows := rg.rows([]*reconciler.RunResult{result})
	if len(rows) == 0 {
		b.WriteString(styles.muted.Render("  no decisions to list"))
		b.WriteString("\n")
		return
	}

	limit := len(rows)
	if rg.config.MaxListItems > 0 && limit > rg.config.MaxListItems {
		limit = rg.config.MaxListItems
	}

	for _, r := range rows[:limit] {
		rg.printDecision(b, styles, r)
	}
	if limit < len(rows) {
		b.WriteString(styles.muted.Render(fmt.Sprintf("  ... and %d more", len(rows)-limit)))
		b.WriteString("\n")
	}

	for _, msg := range result.Errors {
		b.WriteString(styles.bad.Render("  ! " + msg))
		b.WriteString("\n")
	}
}

func (rg *ReportGenerator) printDecision(b *strings.Builder, styles consoleStyles, r row) {
	tx := r.Transaction
	line := fmt.Sprintf("  %-14s %s %12s %s  %-18s",
		truncate(tx.ID, 14), tx.Date.Format("2006-01-02"), tx.Amount.StringFixed(2), tx.Currency, r.matchType())

	if r.Result == nil {
		b.WriteString(styles.bad.Render(line + "  " + r.Err))
		b.WriteString("\n")
		return
	}

	res := r.Result
	decision := styles.actionStyle(res.Action).Render(fmt.Sprintf("%s %-12s", r.confidence(), res.Action))
	target := ""
	switch {
	case res.HasLedgerMatch():
		target = "→ " + res.LedgerTransactionID
	case res.SuggestedAccountID != "":
		target = "→ account " + res.SuggestedAccountID
	}
	if res.IsIntercompany {
		target += styles.warn.Render(" [IC " + res.CounterpartyEntity + "]")
	}
	fmt.Fprintf(b, "%s %s %s\n", line, decision, target)

	if rg.config.IncludeReasons && len(res.Reasons) > 0 {
		b.WriteString(styles.muted.Render("      " + strings.Join(res.Reasons, "; ")))
		b.WriteString("\n")
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
