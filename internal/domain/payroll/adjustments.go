package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const maxAdjustmentName = 120

// Adjustments manages manual earning and deduction lines on a run's entries.
// Every add and remove recomputes the owning entry before it returns.
type Adjustments struct {
	store     StoreAPI
	lifecycle *Lifecycle
	summaries *Aggregator
	now       func() time.Time
}

func NewAdjustments(store StoreAPI, lifecycle *Lifecycle, summaries *Aggregator) *Adjustments {
	return &Adjustments{store: store, lifecycle: lifecycle, summaries: summaries, now: time.Now}
}

func (a *Adjustments) ListFor(ctx context.Context, runID, employeeID int64) ([]Adjustment, error) {
	if _, err := a.store.GetEntry(ctx, runID, employeeID); err != nil {
		return nil, err
	}
	return a.store.ListAdjustments(ctx, runID, employeeID)
}

func validateAdjustment(req AddAdjustmentRequest) error {
	var issues ValidationError
	if req.RunID <= 0 {
		issues.add("runId", "is required")
	}
	if req.EmployeeID <= 0 {
		issues.add("employeeId", "is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		issues.add("name", "is required")
	} else if len(name) > maxAdjustmentName {
		issues.add("name", fmt.Sprintf("must be at most %d characters", maxAdjustmentName))
	}
	if !req.Type.Valid() {
		issues.add("type", "must be earning or deduction")
	}
	if !req.Amount.IsPositive() {
		issues.add("amount", "must be greater than zero")
	}
	return issues.orNil()
}

func (a *Adjustments) Add(ctx context.Context, req AddAdjustmentRequest) (AdjustmentResult, error) {
	if err := validateAdjustment(req); err != nil {
		return AdjustmentResult{}, err
	}

	var result AdjustmentResult
	err := a.store.WithRunLock(ctx, req.RunID, func(tx RunTx) error {
		if err := a.lifecycle.EnsureMutable(tx.Run()); err != nil {
			return err
		}
		entry, err := tx.Entry(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if entry.Disbursed() {
			return fmt.Errorf("employee %d: %w", entry.EmployeeID, ErrEntryDisbursed)
		}

		adj, err := tx.InsertAdjustment(ctx, Adjustment{
			RunID:       req.RunID,
			EmployeeID:  req.EmployeeID,
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			Type:        req.Type,
			Amount:      req.Amount.Round(moneyPlaces),
			CreatedAt:   a.now().UTC(),
		})
		if err != nil {
			return err
		}
		adjustments, err := tx.Adjustments(ctx, entry.EmployeeID)
		if err != nil {
			return err
		}
		if RecomputeEntry(entry, deductionsOnly(adjustments)).Net.IsNegative() {
			return invalid("amount", "deductions would exceed net pay before earning adjustments")
		}
		updated, err := a.apply(ctx, tx, entry, adjustments)
		if err != nil {
			return err
		}
		summary, err := a.summaries.recomputeInTx(ctx, tx)
		if err != nil {
			return err
		}
		result = AdjustmentResult{Adjustment: adj, Entry: updated, Summary: summary}
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	return result, nil
}

// Remove deletes an adjustment and recomputes its entry, restoring gross and
// net to exactly what they were without it. Add keeps deductions covered
// without earning adjustments, so a removal never leaves net negative.
func (a *Adjustments) Remove(ctx context.Context, adjustmentID int64) (AdjustmentResult, error) {
	runID, err := a.store.AdjustmentRunID(ctx, adjustmentID)
	if err != nil {
		return AdjustmentResult{}, err
	}

	var result AdjustmentResult
	err = a.store.WithRunLock(ctx, runID, func(tx RunTx) error {
		if err := a.lifecycle.EnsureMutable(tx.Run()); err != nil {
			return err
		}
		adj, err := tx.Adjustment(ctx, adjustmentID)
		if err != nil {
			return err
		}
		entry, err := tx.Entry(ctx, adj.EmployeeID)
		if err != nil {
			return err
		}
		if entry.Disbursed() {
			return fmt.Errorf("employee %d: %w", entry.EmployeeID, ErrEntryDisbursed)
		}
		if err := tx.DeleteAdjustment(ctx, adjustmentID); err != nil {
			return err
		}
		adjustments, err := tx.Adjustments(ctx, entry.EmployeeID)
		if err != nil {
			return err
		}
		updated, err := a.apply(ctx, tx, entry, adjustments)
		if err != nil {
			return err
		}
		summary, err := a.summaries.recomputeInTx(ctx, tx)
		if err != nil {
			return err
		}
		result = AdjustmentResult{Adjustment: adj, Entry: updated, Summary: summary}
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	return result, nil
}

func (a *Adjustments) apply(ctx context.Context, tx RunTx, entry Entry, adjustments []Adjustment) (Entry, error) {
	updated := RecomputeEntry(entry, adjustments)
	if err := tx.UpdateEntryTotals(ctx, updated); err != nil {
		return Entry{}, err
	}
	return updated, nil
}

// deductionsOnly drops earning lines. Net computed from the rest is the
// lowest net any removal order can reach.
func deductionsOnly(adjustments []Adjustment) []Adjustment {
	out := make([]Adjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.Type == AdjustmentDeduction {
			out = append(out, adj)
		}
	}
	return out
}
