package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payrun/internal/domain/directory"
)

// Lifecycle owns the run state machine: get-or-create generation behind the
// fraud override gate, and the one-way open to locked transition.
type Lifecycle struct {
	store         StoreAPI
	directory     Directory
	engine        Engine
	summaries     *Aggregator
	engineTimeout time.Duration
	now           func() time.Time
}

func NewLifecycle(store StoreAPI, dir Directory, engine Engine, summaries *Aggregator, engineTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		store:         store,
		directory:     dir,
		engine:        engine,
		summaries:     summaries,
		engineTimeout: engineTimeout,
		now:           time.Now,
	}
}

func validateGenerate(req GenerateRequest) error {
	var issues ValidationError
	if req.Month < 1 || req.Month > 12 {
		issues.add("month", "must be between 1 and 12")
	}
	if req.Year < MinYear || req.Year > MaxYear {
		issues.add("year", fmt.Sprintf("must be between %d and %d", MinYear, MaxYear))
	}
	if !req.RunType.Valid() {
		issues.add("runType", "must be regular or off_cycle")
	}
	return issues.orNil()
}

func (l *Lifecycle) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if err := validateGenerate(req); err != nil {
		return GenerateResult{}, err
	}
	key := req.Key()

	existing, err := l.store.FindRun(ctx, key)
	switch {
	case err == nil:
		return l.existingResult(ctx, existing)
	case !errors.Is(err, ErrNotFound):
		return GenerateResult{}, err
	}

	employees, err := l.directory.ActiveEmployees(ctx, key.Period.End())
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load active employees: %w", err)
	}
	if len(employees) == 0 {
		return GenerateResult{}, invalid("period", "has no active employees")
	}

	computeCtx := ctx
	if l.engineTimeout > 0 {
		var cancel context.CancelFunc
		computeCtx, cancel = context.WithTimeout(ctx, l.engineTimeout)
		defer cancel()
	}
	computed, err := l.engine.Compute(computeCtx, ComputeRequest{
		Period:            key.Period,
		RunType:           key.RunType,
		Employees:         employees,
		OverrideConfirmed: req.OverrideConfirmed,
	})
	if err != nil {
		return GenerateResult{}, &EngineError{Key: key, Err: err}
	}
	entries, err := buildEntries(employees, computed.Computations)
	if err != nil {
		return GenerateResult{}, &EngineError{Key: key, Err: err}
	}

	if len(computed.Warnings) > 0 && !req.OverrideConfirmed {
		return GenerateResult{Outcome: OutcomeNeedsOverride, Warnings: computed.Warnings}, nil
	}

	run := Run{
		Month:             key.Period.Month,
		Year:              key.Period.Year,
		RunType:           key.RunType,
		Status:            RunStatusOpen,
		OverrideConfirmed: req.OverrideConfirmed && len(computed.Warnings) > 0,
		Warnings:          computed.Warnings,
		CreatedAt:         l.now().UTC(),
	}

	// Past this point the run either commits whole or not at all, whatever
	// happens to the caller.
	commitCtx := context.WithoutCancel(ctx)
	committed, created, err := l.store.CreateRun(commitCtx, run, entries)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("commit payroll run %s: %w", key, err)
	}
	if !created {
		return l.existingResult(commitCtx, committed)
	}
	if run.OverrideConfirmed {
		slog.Warn("payroll run committed over fraud warnings", "runId", committed.ID, "period", key.String(), "warnings", len(computed.Warnings))
	}

	summary, err := l.summaries.Recompute(commitCtx, committed.ID)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{
		Outcome:  OutcomeCommitted,
		Run:      &committed,
		Summary:  &summary,
		Warnings: computed.Warnings,
	}, nil
}

func (l *Lifecycle) existingResult(ctx context.Context, run Run) (GenerateResult, error) {
	if err := l.EnsureMutable(run); err != nil {
		return GenerateResult{}, err
	}
	summary, err := l.summaries.Recompute(ctx, run.ID)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{Outcome: OutcomeExisting, Run: &run, Summary: &summary}, nil
}

func buildEntries(employees []directory.Employee, computations []Computation) ([]Entry, error) {
	byID := make(map[int64]directory.Employee, len(employees))
	for _, emp := range employees {
		byID[emp.ID] = emp
	}
	computedFor := make(map[int64]Entry, len(computations))
	for _, c := range computations {
		if _, ok := byID[c.EmployeeID]; !ok {
			return nil, fmt.Errorf("computation for unknown employee %d", c.EmployeeID)
		}
		if _, dup := computedFor[c.EmployeeID]; dup {
			return nil, fmt.Errorf("duplicate computation for employee %d", c.EmployeeID)
		}
		entry, err := entryFromComputation(c)
		if err != nil {
			return nil, err
		}
		computedFor[c.EmployeeID] = entry
	}

	entries := make([]Entry, 0, len(employees))
	for _, emp := range employees {
		entry, ok := computedFor[emp.ID]
		if !ok {
			return nil, fmt.Errorf("no computation for employee %d", emp.ID)
		}
		entry.EmployeeName = emp.DisplayName()
		entry.Department = emp.Department
		entry.Phone = emp.Phone
		entry.BankName = emp.BankName
		entry.BankAccount = emp.BankAccount
		entries = append(entries, entry)
	}
	return entries, nil
}

// EnsureMutable is the lock gate for every run mutation. The run passed in
// must have been read under WithRunLock for the check to be authoritative.
func (l *Lifecycle) EnsureMutable(run Run) error {
	if run.IsLocked() {
		return &LockedRunError{RunID: run.ID, Key: run.Key()}
	}
	return nil
}

// Lock moves the run to locked. Locking a locked run returns the run with
// an *AlreadyLockedError, which callers may treat as success.
func (l *Lifecycle) Lock(ctx context.Context, runID int64) (Run, error) {
	var (
		locked  Run
		already bool
	)
	err := l.store.WithRunLock(ctx, runID, func(tx RunTx) error {
		run := tx.Run()
		if run.IsLocked() {
			locked, already = run, true
			return nil
		}
		updated, err := tx.Lock(ctx, l.now().UTC())
		if err != nil {
			return err
		}
		locked = updated
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	if already {
		return locked, &AlreadyLockedError{Run: locked}
	}
	return locked, nil
}

func (l *Lifecycle) IsLocked(ctx context.Context, runID int64) (bool, error) {
	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.IsLocked(), nil
}

func (l *Lifecycle) Get(ctx context.Context, runID int64) (Run, error) {
	return l.store.GetRun(ctx, runID)
}

func (l *Lifecycle) List(ctx context.Context, limit, offset int) ([]Run, int, error) {
	return l.store.ListRuns(ctx, limit, offset)
}

func (l *Lifecycle) Entries(ctx context.Context, runID int64) ([]Entry, error) {
	if _, err := l.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return l.store.ListEntries(ctx, runID)
}
