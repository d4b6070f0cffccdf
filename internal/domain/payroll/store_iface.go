package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StoreAPI is the persistence contract shared by the Postgres and in-memory
// stores. Every multi-row write is atomic.
type StoreAPI interface {
	Ping(ctx context.Context) error

	GetRun(ctx context.Context, runID int64) (Run, error)
	FindRun(ctx context.Context, key RunKey) (Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error)
	// CreateRun inserts the run and its entries together. When a run with the
	// same key already exists nothing is written and that run is returned
	// with created false.
	CreateRun(ctx context.Context, run Run, entries []Entry) (Run, bool, error)

	ListEntries(ctx context.Context, runID int64) ([]Entry, error)
	GetEntry(ctx context.Context, runID, employeeID int64) (Entry, error)
	ListAdjustments(ctx context.Context, runID, employeeID int64) ([]Adjustment, error)
	ListRunAdjustments(ctx context.Context, runID int64) ([]Adjustment, error)
	AdjustmentRunID(ctx context.Context, adjustmentID int64) (int64, error)

	// TrailingNetPay returns net pay from the employee's most recent regular
	// runs strictly before the given period, newest first.
	TrailingNetPay(ctx context.Context, employeeID int64, before Period, limit int) ([]decimal.Decimal, error)
	TaxCardLines(ctx context.Context, employeeID int64, year int) ([]TaxCardLine, error)

	// WithRunLock serializes fn against every other mutation of the run.
	// fn sees the run as of lock acquisition and its writes commit only if
	// it returns nil.
	WithRunLock(ctx context.Context, runID int64, fn func(tx RunTx) error) error

	// ClaimForDisbursement moves every unpaid or rejected entry of the run to
	// submitting and returns the claimed entries.
	ClaimForDisbursement(ctx context.Context, runID int64) ([]Entry, error)
	// SettlePayment records a gateway outcome for a submitting entry. It
	// fails with ErrNotSubmitting when the entry is in any other state.
	SettlePayment(ctx context.Context, outcome PaymentOutcome) error
	SaveBatch(ctx context.Context, batch DisbursementBatch) error
	// MarkRunPaid settles every unpaid entry that is not submitting.
	MarkRunPaid(ctx context.Context, runID int64, note string, at time.Time) (int, error)

	SaveDocument(ctx context.Context, handle FileHandle) error
	GetDocument(ctx context.Context, documentID string) (FileHandle, error)

	PendingActions(ctx context.Context) (int, error)
}

type RunTx interface {
	Run() Run
	Entries(ctx context.Context) ([]Entry, error)
	Entry(ctx context.Context, employeeID int64) (Entry, error)
	Adjustment(ctx context.Context, adjustmentID int64) (Adjustment, error)
	Adjustments(ctx context.Context, employeeID int64) ([]Adjustment, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	DeleteAdjustment(ctx context.Context, adjustmentID int64) error
	// UpdateEntryTotals fails with ErrEntryDisbursed once the entry has been
	// claimed for disbursement.
	UpdateEntryTotals(ctx context.Context, entry Entry) error
	Lock(ctx context.Context, at time.Time) (Run, error)
}
