package reports

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/payroll"
)

type RunLister interface {
	List(ctx context.Context, limit, offset int) ([]payroll.Run, int, error)
}

type Summaries interface {
	Recompute(ctx context.Context, runID int64) (payroll.RunSummary, error)
}

type Headcount interface {
	CountActive(ctx context.Context) (int, error)
}

type PendingCounter interface {
	PendingActions(ctx context.Context) (int, error)
}

type Stats struct {
	ActiveEmployees int             `json:"activeEmployees"`
	LastPayrollCost decimal.Decimal `json:"lastPayrollCost"`
	LastPayrollRun  *payroll.Run    `json:"lastPayrollRun,omitempty"`
	PayrollTrend    string          `json:"payrollTrend"`
	PendingActions  int             `json:"pendingActions"`
	Currency        string          `json:"currency"`
}

// Service builds the payroll dashboard from the run store and directory.
type Service struct {
	Runs      RunLister
	Summaries Summaries
	Headcount Headcount
	Pending   PendingCounter
	Currency  string
}

func NewService(runs RunLister, summaries Summaries, headcount Headcount, pending PendingCounter, currency string) *Service {
	return &Service{Runs: runs, Summaries: summaries, Headcount: headcount, Pending: pending, Currency: currency}
}

// runScanPage bounds how far back the dashboard looks for regular runs.
const runScanPage = 24

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{LastPayrollCost: decimal.Zero, PayrollTrend: "0%", Currency: s.Currency}

	active, err := s.Headcount.CountActive(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count active employees: %w", err)
	}
	stats.ActiveEmployees = active

	pending, err := s.Pending.PendingActions(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count pending actions: %w", err)
	}
	stats.PendingActions = pending

	runs, _, err := s.Runs.List(ctx, runScanPage, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("list payroll runs: %w", err)
	}
	var regular []payroll.Run
	for _, run := range runs {
		if run.RunType == payroll.RunTypeRegular {
			regular = append(regular, run)
		}
		if len(regular) == 2 {
			break
		}
	}
	if len(regular) == 0 {
		return stats, nil
	}

	latest, err := s.Summaries.Recompute(ctx, regular[0].ID)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize run %d: %w", regular[0].ID, err)
	}
	stats.LastPayrollCost = latest.TotalGross
	stats.LastPayrollRun = &regular[0]
	if len(regular) == 1 {
		return stats, nil
	}

	previous, err := s.Summaries.Recompute(ctx, regular[1].ID)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize run %d: %w", regular[1].ID, err)
	}
	stats.PayrollTrend = Trend(latest.TotalGross, previous.TotalGross)
	return stats, nil
}

// Trend formats the change from previous to current as a signed percentage
// with one decimal, or "0%" when there is nothing to compare against.
func Trend(current, previous decimal.Decimal) string {
	if !previous.IsPositive() {
		return "0%"
	}
	change := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1)
	if change.IsZero() {
		return "0%"
	}
	if change.IsPositive() {
		return "+" + change.StringFixed(1) + "%"
	}
	return change.StringFixed(1) + "%"
}
