package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

// Summarize folds entries into run totals. Totals are never cached; every
// caller gets a fresh fold of the entries it passes in.
func Summarize(runID int64, entries []Entry) RunSummary {
	summary := RunSummary{
		RunID:                     runID,
		TotalGross:                decimal.Zero,
		TotalTax:                  decimal.Zero,
		TotalPension:              decimal.Zero,
		TotalHealthLevy:           decimal.Zero,
		TotalHousingLevy:          decimal.Zero,
		TotalAdjustmentDeductions: decimal.Zero,
		TotalNet:                  decimal.Zero,
	}
	for _, entry := range entries {
		summary.TotalEmployees++
		summary.TotalGross = summary.TotalGross.Add(entry.Gross)
		summary.TotalTax = summary.TotalTax.Add(entry.Deductions.Tax)
		summary.TotalPension = summary.TotalPension.Add(entry.Deductions.Pension)
		summary.TotalHealthLevy = summary.TotalHealthLevy.Add(entry.Deductions.HealthLevy)
		summary.TotalHousingLevy = summary.TotalHousingLevy.Add(entry.Deductions.HousingLevy)
		summary.TotalAdjustmentDeductions = summary.TotalAdjustmentDeductions.Add(entry.AdjustmentDeductions)
		summary.TotalNet = summary.TotalNet.Add(entry.Net)
		if entry.Paid {
			summary.PaidEntries++
		} else {
			summary.UnpaidEntries++
		}
	}
	return summary
}

type Aggregator struct {
	store StoreAPI
}

func NewAggregator(store StoreAPI) *Aggregator {
	return &Aggregator{store: store}
}

func (a *Aggregator) Recompute(ctx context.Context, runID int64) (RunSummary, error) {
	if _, err := a.store.GetRun(ctx, runID); err != nil {
		return RunSummary{}, err
	}
	entries, err := a.store.ListEntries(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	return Summarize(runID, entries), nil
}

// recomputeInTx folds the entries visible inside a run lock, so the summary
// reflects exactly the writes made under that lock.
func (a *Aggregator) recomputeInTx(ctx context.Context, tx RunTx) (RunSummary, error) {
	entries, err := tx.Entries(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return Summarize(tx.Run().ID, entries), nil
}
