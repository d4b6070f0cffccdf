package payroll

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process. A single mutex serializes all
// writes, which is stronger than the per-run ordering callers rely on.
type MemoryStore struct {
	mu sync.Mutex

	nextRunID        int64
	nextEntryID      int64
	nextAdjustmentID int64

	runs        map[int64]Run
	keys        map[RunKey]int64
	entries     map[int64]map[int64]Entry // run id -> employee id -> entry
	entryRun    map[int64]int64           // entry id -> run id
	adjustments map[int64]Adjustment
	batches     []DisbursementBatch
	documents   map[string]FileHandle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        map[int64]Run{},
		keys:        map[RunKey]int64{},
		entries:     map[int64]map[int64]Entry{},
		entryRun:    map[int64]int64{},
		adjustments: map[int64]Adjustment{},
		documents:   map[string]FileHandle{},
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetRun(ctx context.Context, runID int64) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return Run{}, notFound("payroll run", runID)
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) FindRun(ctx context.Context, key RunKey) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	if !ok {
		return Run{}, notFound("payroll run", key.String())
	}
	return cloneRun(s.runs[id]), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Year != runs[j].Year {
			return runs[i].Year > runs[j].Year
		}
		if runs[i].Month != runs[j].Month {
			return runs[i].Month > runs[j].Month
		}
		return runs[i].ID > runs[j].ID
	})
	total := len(runs)
	if offset >= total {
		return []Run{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return runs[offset:end], total, nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run Run, entries []Entry) (Run, bool, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.keys[run.Key()]; ok {
		return cloneRun(s.runs[id]), false, nil
	}

	s.nextRunID++
	run.ID = s.nextRunID
	run = cloneRun(run)
	s.runs[run.ID] = run
	s.keys[run.Key()] = run.ID

	byEmployee := make(map[int64]Entry, len(entries))
	for _, entry := range entries {
		s.nextEntryID++
		entry.ID = s.nextEntryID
		entry.RunID = run.ID
		byEmployee[entry.EmployeeID] = entry
		s.entryRun[entry.ID] = run.ID
	}
	s.entries[run.ID] = byEmployee
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, runID int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedEntries(s.entries[runID]), nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, runID, employeeID int64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return Entry{}, notFound("payroll run", runID)
	}
	entry, ok := s.entries[runID][employeeID]
	if !ok {
		return Entry{}, notFound("payroll entry for employee", employeeID)
	}
	return entry, nil
}

func (s *MemoryStore) ListAdjustments(ctx context.Context, runID, employeeID int64) ([]Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustmentsLocked(runID, func(adj Adjustment) bool { return adj.EmployeeID == employeeID }), nil
}

func (s *MemoryStore) ListRunAdjustments(ctx context.Context, runID int64) ([]Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustmentsLocked(runID, func(Adjustment) bool { return true }), nil
}

func (s *MemoryStore) adjustmentsLocked(runID int64, keep func(Adjustment) bool) []Adjustment {
	out := []Adjustment{}
	for _, adj := range s.adjustments {
		if adj.RunID == runID && keep(adj) {
			out = append(out, adj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) AdjustmentRunID(ctx context.Context, adjustmentID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	adj, ok := s.adjustments[adjustmentID]
	if !ok {
		return 0, notFound("adjustment", adjustmentID)
	}
	return adj.RunID, nil
}

func (s *MemoryStore) TrailingNetPay(ctx context.Context, employeeID int64, before Period, limit int) ([]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var runs []Run
	for _, run := range s.runs {
		if run.RunType == RunTypeRegular && run.Period().Before(before) {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[j].Period().Before(runs[i].Period()) })

	var out []decimal.Decimal
	for _, run := range runs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if entry, ok := s.entries[run.ID][employeeID]; ok {
			out = append(out, entry.Net)
		}
	}
	return out, nil
}

func (s *MemoryStore) TaxCardLines(ctx context.Context, employeeID int64, year int) ([]TaxCardLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMonth := map[int]TaxCardLine{}
	for _, run := range s.runs {
		if run.Year != year || !run.IsLocked() {
			continue
		}
		entry, ok := s.entries[run.ID][employeeID]
		if !ok {
			continue
		}
		line, ok := byMonth[run.Month]
		if !ok {
			line = TaxCardLine{Period: run.Period(), Gross: decimal.Zero, Net: decimal.Zero, Deductions: zeroDeductions()}
		}
		byMonth[run.Month] = addToTaxCard(line, entry)
	}
	lines := make([]TaxCardLine, 0, len(byMonth))
	for _, line := range byMonth {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Period.Month < lines[j].Period.Month })
	return lines, nil
}

func (s *MemoryStore) WithRunLock(ctx context.Context, runID int64, fn func(tx RunTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return notFound("payroll run", runID)
	}

	tx := &memoryTx{
		store:       s,
		run:         cloneRun(run),
		entries:     make(map[int64]Entry, len(s.entries[runID])),
		adjustments: map[int64]Adjustment{},
		nextAdjID:   s.nextAdjustmentID,
	}
	for id, entry := range s.entries[runID] {
		tx.entries[id] = entry
	}
	for id, adj := range s.adjustments {
		if adj.RunID == runID {
			tx.adjustments[id] = adj
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.runs[runID] = tx.run
	s.entries[runID] = tx.entries
	for id, adj := range s.adjustments {
		if adj.RunID == runID {
			delete(s.adjustments, id)
		}
	}
	for id, adj := range tx.adjustments {
		s.adjustments[id] = adj
	}
	s.nextAdjustmentID = tx.nextAdjID
	return nil
}

func (s *MemoryStore) ClaimForDisbursement(ctx context.Context, runID int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, notFound("payroll run", runID)
	}
	var claimed []Entry
	for employeeID, entry := range s.entries[runID] {
		if !entry.eligibleForDisbursement() {
			continue
		}
		entry.PaymentStatus = PaymentStatusSubmitting
		entry.PaymentNote = ""
		s.entries[runID][employeeID] = entry
		claimed = append(claimed, entry)
	}
	sortEntries(claimed)
	return claimed, nil
}

func (s *MemoryStore) SettlePayment(ctx context.Context, outcome PaymentOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runID, ok := s.entryRun[outcome.EntryID]
	if !ok {
		return notFound("payroll entry", outcome.EntryID)
	}
	for employeeID, entry := range s.entries[runID] {
		if entry.ID != outcome.EntryID {
			continue
		}
		if entry.PaymentStatus != PaymentStatusSubmitting {
			return fmt.Errorf("entry %d is %s: %w", entry.ID, entry.PaymentStatus, ErrNotSubmitting)
		}
		s.entries[runID][employeeID] = settle(entry, outcome)
		return nil
	}
	return notFound("payroll entry", outcome.EntryID)
}

func (s *MemoryStore) SaveBatch(ctx context.Context, batch DisbursementBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns recorded disbursement batches, oldest first.
func (s *MemoryStore) Batches() []DisbursementBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DisbursementBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *MemoryStore) MarkRunPaid(ctx context.Context, runID int64, note string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for employeeID, entry := range s.entries[runID] {
		if entry.Paid || entry.PaymentStatus == PaymentStatusSubmitting {
			continue
		}
		s.entries[runID][employeeID] = settle(entry, PaymentOutcome{EntryID: entry.ID, Status: PaymentStatusPaid, Note: note, At: at})
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) SaveDocument(ctx context.Context, handle FileHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[handle.ID] = handle
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, documentID string) (FileHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.documents[documentID]
	if !ok {
		return FileHandle{}, notFound("document", documentID)
	}
	return handle, nil
}

func (s *MemoryStore) PendingActions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := 0
	for _, run := range s.runs {
		if !run.IsLocked() {
			pending++
			continue
		}
		for _, entry := range s.entries[run.ID] {
			if !entry.Paid {
				pending++
			}
		}
	}
	return pending, nil
}

type memoryTx struct {
	store       *MemoryStore
	run         Run
	entries     map[int64]Entry
	adjustments map[int64]Adjustment
	nextAdjID   int64
}

func (t *memoryTx) Run() Run {
	return cloneRun(t.run)
}

func (t *memoryTx) Entries(ctx context.Context) ([]Entry, error) {
	return sortedEntries(t.entries), nil
}

func (t *memoryTx) Entry(ctx context.Context, employeeID int64) (Entry, error) {
	entry, ok := t.entries[employeeID]
	if !ok {
		return Entry{}, notFound("payroll entry for employee", employeeID)
	}
	return entry, nil
}

func (t *memoryTx) Adjustment(ctx context.Context, adjustmentID int64) (Adjustment, error) {
	adj, ok := t.adjustments[adjustmentID]
	if !ok {
		return Adjustment{}, notFound("adjustment", adjustmentID)
	}
	return adj, nil
}

func (t *memoryTx) Adjustments(ctx context.Context, employeeID int64) ([]Adjustment, error) {
	out := []Adjustment{}
	for _, adj := range t.adjustments {
		if adj.EmployeeID == employeeID {
			out = append(out, adj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	t.nextAdjID++
	adj.ID = t.nextAdjID
	adj.RunID = t.run.ID
	t.adjustments[adj.ID] = adj
	return adj, nil
}

func (t *memoryTx) DeleteAdjustment(ctx context.Context, adjustmentID int64) error {
	if _, ok := t.adjustments[adjustmentID]; !ok {
		return notFound("adjustment", adjustmentID)
	}
	delete(t.adjustments, adjustmentID)
	return nil
}

func (t *memoryTx) UpdateEntryTotals(ctx context.Context, entry Entry) error {
	current, ok := t.entries[entry.EmployeeID]
	if !ok {
		return notFound("payroll entry for employee", entry.EmployeeID)
	}
	if !current.eligibleForDisbursement() {
		return fmt.Errorf("employee %d: %w", entry.EmployeeID, ErrEntryDisbursed)
	}
	current.Gross = entry.Gross
	current.AdjustmentDeductions = entry.AdjustmentDeductions
	current.Net = entry.Net
	t.entries[entry.EmployeeID] = current
	return nil
}

func (t *memoryTx) Lock(ctx context.Context, at time.Time) (Run, error) {
	t.run.Status = RunStatusLocked
	lockedAt := at
	t.run.LockedAt = &lockedAt
	return cloneRun(t.run), nil
}

func cloneRun(run Run) Run {
	if run.Warnings != nil {
		warnings := make([]string, len(run.Warnings))
		copy(warnings, run.Warnings)
		run.Warnings = warnings
	}
	if run.LockedAt != nil {
		lockedAt := *run.LockedAt
		run.LockedAt = &lockedAt
	}
	return run
}

func sortedEntries(byEmployee map[int64]Entry) []Entry {
	out := make([]Entry, 0, len(byEmployee))
	for _, entry := range byEmployee {
		out = append(out, entry)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EmployeeName != entries[j].EmployeeName {
			return entries[i].EmployeeName < entries[j].EmployeeName
		}
		return entries[i].ID < entries[j].ID
	})
}

func settle(entry Entry, outcome PaymentOutcome) Entry {
	entry.PaymentStatus = outcome.Status
	entry.Paid = outcome.Status == PaymentStatusPaid
	if outcome.Reference != "" {
		entry.PaymentReference = outcome.Reference
	}
	entry.PaymentNote = outcome.Note
	if entry.Paid {
		at := outcome.At
		entry.PaidAt = &at
	}
	return entry
}

func zeroDeductions() Deductions {
	return Deductions{Tax: decimal.Zero, Pension: decimal.Zero, HealthLevy: decimal.Zero, HousingLevy: decimal.Zero}
}

func addToTaxCard(line TaxCardLine, entry Entry) TaxCardLine {
	line.Gross = line.Gross.Add(entry.Gross)
	line.Net = line.Net.Add(entry.Net)
	line.Deductions = Deductions{
		Tax:         line.Deductions.Tax.Add(entry.Deductions.Tax),
		Pension:     line.Deductions.Pension.Add(entry.Deductions.Pension),
		HealthLevy:  line.Deductions.HealthLevy.Add(entry.Deductions.HealthLevy),
		HousingLevy: line.Deductions.HousingLevy.Add(entry.Deductions.HousingLevy),
	}
	return line
}
