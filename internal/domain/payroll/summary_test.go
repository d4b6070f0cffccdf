package payroll

import (
	"context"
	"errors"
	"testing"
)

func TestSummarizeFoldsEntries(t *testing.T) {
	entries := []Entry{
		{Gross: dec("100000"), Net: dec("78000"), AdjustmentDeductions: dec("0"), Deductions: Deductions{Tax: dec("22000"), Pension: dec("0"), HealthLevy: dec("0"), HousingLevy: dec("0")}, Paid: true},
		{Gross: dec("50000.50"), Net: dec("40000.25"), AdjustmentDeductions: dec("1000"), Deductions: Deductions{Tax: dec("9000.25"), Pension: dec("0"), HealthLevy: dec("0"), HousingLevy: dec("0")}},
	}
	summary := Summarize(3, entries)
	if summary.RunID != 3 || summary.TotalEmployees != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.TotalGross.Equal(dec("150000.50")) {
		t.Fatalf("expected gross 150000.50, got %s", summary.TotalGross)
	}
	if !summary.TotalNet.Equal(dec("118000.25")) {
		t.Fatalf("expected net 118000.25, got %s", summary.TotalNet)
	}
	if !summary.TotalTax.Equal(dec("31000.25")) {
		t.Fatalf("expected tax 31000.25, got %s", summary.TotalTax)
	}
	if summary.PaidEntries != 1 || summary.UnpaidEntries != 1 {
		t.Fatalf("expected one paid and one unpaid, got %+v", summary)
	}
}

func TestSummarizeEmptyRun(t *testing.T) {
	summary := Summarize(1, nil)
	if !summary.TotalNet.IsZero() || summary.TotalEmployees != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestRecomputeUnknownRun(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Summaries.Recompute(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
