package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payrun/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const runColumns = `id, month, year, run_type, status, override_confirmed, warnings_json, created_at, locked_at`

const entryColumns = `id, run_id, employee_id, employee_name, department, phone, bank_name, bank_account,
  basic_salary, allowances, gross, tax, pension, health_levy, housing_levy, adjustment_deductions, net,
  paid, payment_status, payment_reference, payment_note, paid_at`

const adjustmentColumns = `id, run_id, employee_id, name, description, adjustment_type, amount, created_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var runType, status string
	var warningsJSON []byte
	if err := row.Scan(&run.ID, &run.Month, &run.Year, &runType, &status, &run.OverrideConfirmed, &warningsJSON, &run.CreatedAt, &run.LockedAt); err != nil {
		return Run{}, err
	}
	run.RunType = RunType(runType)
	run.Status = RunStatus(status)
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &run.Warnings); err != nil {
			return Run{}, fmt.Errorf("decode run warnings: %w", err)
		}
	}
	return run, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var status string
	err := row.Scan(
		&entry.ID, &entry.RunID, &entry.EmployeeID, &entry.EmployeeName, &entry.Department,
		&entry.Phone, &entry.BankName, &entry.BankAccount,
		&entry.BasicSalary, &entry.Allowances, &entry.Gross,
		&entry.Deductions.Tax, &entry.Deductions.Pension, &entry.Deductions.HealthLevy, &entry.Deductions.HousingLevy,
		&entry.AdjustmentDeductions, &entry.Net,
		&entry.Paid, &status, &entry.PaymentReference, &entry.PaymentNote, &entry.PaidAt,
	)
	if err != nil {
		return Entry{}, err
	}
	entry.PaymentStatus = PaymentStatus(status)
	return entry, nil
}

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var adj Adjustment
	var adjType string
	if err := row.Scan(&adj.ID, &adj.RunID, &adj.EmployeeID, &adj.Name, &adj.Description, &adjType, &adj.Amount, &adj.CreatedAt); err != nil {
		return Adjustment{}, err
	}
	adj.Type = AdjustmentType(adjType)
	return adj, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func collectAdjustments(rows pgx.Rows) ([]Adjustment, error) {
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Store) GetRun(ctx context.Context, runID int64) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, notFound("payroll run", runID)
	}
	return run, err
}

func (s *Store) FindRun(ctx context.Context, key RunKey) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    WHERE year = $1 AND month = $2 AND run_type = $3
  `, key.Period.Year, key.Period.Month, string(key.RunType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, notFound("payroll run", key.String())
	}
	return run, err
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM payroll_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    ORDER BY year DESC, month DESC, id DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, run Run, entries []Entry) (Run, bool, error) {
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return Run{}, false, err
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Run{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanRun(tx.QueryRow(ctx, `
    INSERT INTO payroll_runs (month, year, run_type, status, override_confirmed, warnings_json, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (year, month, run_type) DO NOTHING
    RETURNING `+runColumns,
		run.Month, run.Year, string(run.RunType), string(run.Status), run.OverrideConfirmed, warningsJSON, run.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, err := s.FindRun(ctx, run.Key())
		return existing, false, err
	}
	if err != nil {
		return Run{}, false, err
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
      INSERT INTO payroll_entries (run_id, employee_id, employee_name, department, phone, bank_name, bank_account,
        basic_salary, allowances, gross, tax, pension, health_levy, housing_levy, adjustment_deductions, net,
        paid, payment_status)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
    `, created.ID, entry.EmployeeID, entry.EmployeeName, entry.Department, entry.Phone, entry.BankName, entry.BankAccount,
			entry.BasicSalary, entry.Allowances, entry.Gross,
			entry.Deductions.Tax, entry.Deductions.Pension, entry.Deductions.HealthLevy, entry.Deductions.HousingLevy,
			entry.AdjustmentDeductions, entry.Net, false, string(PaymentStatusUnpaid))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Run{}, false, fmt.Errorf("insert payroll entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Run{}, false, err
	}
	return created, true, nil
}

func (s *Store) ListEntries(ctx context.Context, runID int64) ([]Entry, error) {
	return listEntries(ctx, s.DB, runID)
}

func listEntries(ctx context.Context, q querier.Querier, runID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `
    SELECT `+entryColumns+`
    FROM payroll_entries
    WHERE run_id = $1
    ORDER BY employee_name, id
  `, runID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *Store) GetEntry(ctx context.Context, runID, employeeID int64) (Entry, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return Entry{}, err
	}
	return getEntry(ctx, s.DB, runID, employeeID)
}

func getEntry(ctx context.Context, q querier.Querier, runID, employeeID int64) (Entry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, `
    SELECT `+entryColumns+`
    FROM payroll_entries
    WHERE run_id = $1 AND employee_id = $2
  `, runID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, notFound("payroll entry for employee", employeeID)
	}
	return entry, err
}

func (s *Store) ListAdjustments(ctx context.Context, runID, employeeID int64) ([]Adjustment, error) {
	return listAdjustments(ctx, s.DB, runID, employeeID)
}

func listAdjustments(ctx context.Context, q querier.Querier, runID, employeeID int64) ([]Adjustment, error) {
	rows, err := q.Query(ctx, `
    SELECT `+adjustmentColumns+`
    FROM payroll_adjustments
    WHERE run_id = $1 AND employee_id = $2
    ORDER BY id
  `, runID, employeeID)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func (s *Store) ListRunAdjustments(ctx context.Context, runID int64) ([]Adjustment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+adjustmentColumns+`
    FROM payroll_adjustments
    WHERE run_id = $1
    ORDER BY employee_id, id
  `, runID)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func (s *Store) AdjustmentRunID(ctx context.Context, adjustmentID int64) (int64, error) {
	var runID int64
	err := s.DB.QueryRow(ctx, `SELECT run_id FROM payroll_adjustments WHERE id = $1`, adjustmentID).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound("adjustment", adjustmentID)
	}
	return runID, err
}

func (s *Store) TrailingNetPay(ctx context.Context, employeeID int64, before Period, limit int) ([]decimal.Decimal, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT e.net
    FROM payroll_entries e
    JOIN payroll_runs r ON r.id = e.run_id
    WHERE e.employee_id = $1
      AND r.run_type = $2
      AND (r.year * 12 + r.month) < $3
    ORDER BY r.year DESC, r.month DESC
    LIMIT $4
  `, employeeID, string(RunTypeRegular), before.Year*12+before.Month, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nets []decimal.Decimal
	for rows.Next() {
		var net decimal.Decimal
		if err := rows.Scan(&net); err != nil {
			return nil, err
		}
		nets = append(nets, net)
	}
	return nets, rows.Err()
}

func (s *Store) TaxCardLines(ctx context.Context, employeeID int64, year int) ([]TaxCardLine, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT r.month, SUM(e.gross), SUM(e.tax), SUM(e.pension), SUM(e.health_levy), SUM(e.housing_levy), SUM(e.net)
    FROM payroll_entries e
    JOIN payroll_runs r ON r.id = e.run_id
    WHERE e.employee_id = $1 AND r.year = $2 AND r.status = $3
    GROUP BY r.month
    ORDER BY r.month
  `, employeeID, year, string(RunStatusLocked))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []TaxCardLine
	for rows.Next() {
		line := TaxCardLine{Period: Period{Year: year}}
		if err := rows.Scan(&line.Period.Month, &line.Gross, &line.Deductions.Tax, &line.Deductions.Pension,
			&line.Deductions.HealthLevy, &line.Deductions.HousingLevy, &line.Net); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) WithRunLock(ctx context.Context, runID int64, fn func(tx RunTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	run, err := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = $1 FOR UPDATE`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("payroll run", runID)
	}
	if err != nil {
		return err
	}
	if err := fn(&pgRunTx{tx: tx, run: run}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ClaimForDisbursement(ctx context.Context, runID int64) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    UPDATE payroll_entries
    SET payment_status = $2, payment_note = '', updated_at = now()
    WHERE run_id = $1 AND payment_status IN ($3, $4)
    RETURNING `+entryColumns,
		runID, string(PaymentStatusSubmitting), string(PaymentStatusUnpaid), string(PaymentStatusRejected))
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (s *Store) SettlePayment(ctx context.Context, outcome PaymentOutcome) error {
	var paidAt *time.Time
	if outcome.Status == PaymentStatusPaid {
		at := outcome.At
		paidAt = &at
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_entries
    SET payment_status = $2,
        paid = $3,
        payment_reference = CASE WHEN $4 = '' THEN payment_reference ELSE $4 END,
        payment_note = $5,
        paid_at = COALESCE($6, paid_at),
        updated_at = now()
    WHERE id = $1 AND payment_status = $7
  `, outcome.EntryID, string(outcome.Status), outcome.Status == PaymentStatusPaid, outcome.Reference, outcome.Note, paidAt,
		string(PaymentStatusSubmitting))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.DB.QueryRow(ctx, `SELECT payment_status FROM payroll_entries WHERE id = $1`, outcome.EntryID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("payroll entry", outcome.EntryID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("entry %d is %s: %w", outcome.EntryID, status, ErrNotSubmitting)
}

func (s *Store) SaveBatch(ctx context.Context, batch DisbursementBatch) error {
	resultsJSON, err := json.Marshal(batch.Results)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO disbursement_batches (id, run_id, submitted, accepted, rejected, unconfirmed, skipped, results_json, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, batch.ID, batch.RunID, batch.Submitted, batch.Accepted, batch.Rejected, batch.Unconfirmed, batch.Skipped, resultsJSON, batch.CreatedAt)
	return err
}

func (s *Store) MarkRunPaid(ctx context.Context, runID int64, note string, at time.Time) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_entries
    SET paid = true, payment_status = $2, payment_note = $3, paid_at = $4, updated_at = now()
    WHERE run_id = $1 AND paid = false AND payment_status <> $5
  `, runID, string(PaymentStatusPaid), note, at, string(PaymentStatusSubmitting))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SaveDocument(ctx context.Context, handle FileHandle) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO documents (id, run_id, employee_id, kind, file_name, content_type, size_bytes, path, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, handle.ID, nullIfZero(handle.RunID), nullIfZero(handle.EmployeeID), string(handle.Kind),
		handle.FileName, handle.ContentType, handle.Size, handle.Path, handle.CreatedAt)
	return err
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (FileHandle, error) {
	var handle FileHandle
	var kind string
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, COALESCE(run_id, 0), COALESCE(employee_id, 0), kind, file_name, content_type, size_bytes, path, created_at
    FROM documents
    WHERE id::text = $1
  `, documentID).Scan(&handle.ID, &handle.RunID, &handle.EmployeeID, &kind, &handle.FileName, &handle.ContentType, &handle.Size, &handle.Path, &handle.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FileHandle{}, notFound("document", documentID)
	}
	if err != nil {
		return FileHandle{}, err
	}
	handle.Kind = DocumentKind(kind)
	return handle, nil
}

func (s *Store) PendingActions(ctx context.Context) (int, error) {
	var openRuns, unpaid int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM payroll_runs WHERE status = $1`, string(RunStatusOpen)).Scan(&openRuns); err != nil {
		return 0, err
	}
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM payroll_entries e
    JOIN payroll_runs r ON r.id = e.run_id
    WHERE r.status = $1 AND e.paid = false
  `, string(RunStatusLocked)).Scan(&unpaid); err != nil {
		return 0, err
	}
	return openRuns + unpaid, nil
}

// pgRunTx runs inside the transaction holding the run row lock.
type pgRunTx struct {
	tx  pgx.Tx
	run Run
}

func (t *pgRunTx) Run() Run {
	return t.run
}

func (t *pgRunTx) Entries(ctx context.Context) ([]Entry, error) {
	return listEntries(ctx, t.tx, t.run.ID)
}

// Entry locks the entry row so a concurrent disbursement claim waits for
// this transaction.
func (t *pgRunTx) Entry(ctx context.Context, employeeID int64) (Entry, error) {
	entry, err := scanEntry(t.tx.QueryRow(ctx, `
    SELECT `+entryColumns+`
    FROM payroll_entries
    WHERE run_id = $1 AND employee_id = $2
    FOR UPDATE
  `, t.run.ID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, notFound("payroll entry for employee", employeeID)
	}
	return entry, err
}

func (t *pgRunTx) Adjustment(ctx context.Context, adjustmentID int64) (Adjustment, error) {
	adj, err := scanAdjustment(t.tx.QueryRow(ctx, `
    SELECT `+adjustmentColumns+`
    FROM payroll_adjustments
    WHERE id = $1 AND run_id = $2
  `, adjustmentID, t.run.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, notFound("adjustment", adjustmentID)
	}
	return adj, err
}

func (t *pgRunTx) Adjustments(ctx context.Context, employeeID int64) ([]Adjustment, error) {
	return listAdjustments(ctx, t.tx, t.run.ID, employeeID)
}

func (t *pgRunTx) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	return scanAdjustment(t.tx.QueryRow(ctx, `
    INSERT INTO payroll_adjustments (run_id, employee_id, name, description, adjustment_type, amount, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING `+adjustmentColumns,
		t.run.ID, adj.EmployeeID, adj.Name, adj.Description, string(adj.Type), adj.Amount, adj.CreatedAt))
}

func (t *pgRunTx) DeleteAdjustment(ctx context.Context, adjustmentID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payroll_adjustments WHERE id = $1 AND run_id = $2`, adjustmentID, t.run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("adjustment", adjustmentID)
	}
	return nil
}

func (t *pgRunTx) UpdateEntryTotals(ctx context.Context, entry Entry) error {
	tag, err := t.tx.Exec(ctx, `
    UPDATE payroll_entries
    SET gross = $3, adjustment_deductions = $4, net = $5, updated_at = now()
    WHERE run_id = $1 AND employee_id = $2 AND payment_status IN ($6, $7)
  `, t.run.ID, entry.EmployeeID, entry.Gross, entry.AdjustmentDeductions, entry.Net,
		string(PaymentStatusUnpaid), string(PaymentStatusRejected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employee %d: %w", entry.EmployeeID, ErrEntryDisbursed)
	}
	return nil
}

func (t *pgRunTx) Lock(ctx context.Context, at time.Time) (Run, error) {
	run, err := scanRun(t.tx.QueryRow(ctx, `
    UPDATE payroll_runs
    SET status = $2, locked_at = $3
    WHERE id = $1
    RETURNING `+runColumns,
		t.run.ID, string(RunStatusLocked), at))
	if err != nil {
		return Run{}, err
	}
	t.run = run
	return run, nil
}

func nullIfZero(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
