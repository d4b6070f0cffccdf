package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last instant of the period's final day.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Before reports whether p falls strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

type RunKey struct {
	Period  Period  `json:"period"`
	RunType RunType `json:"runType"`
}

func (k RunKey) String() string {
	return k.Period.String() + " " + string(k.RunType)
}

type Run struct {
	ID                int64      `json:"id"`
	Month             int        `json:"month"`
	Year              int        `json:"year"`
	RunType           RunType    `json:"runType"`
	Status            RunStatus  `json:"status"`
	OverrideConfirmed bool       `json:"overrideConfirmed"`
	Warnings          []string   `json:"warnings,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	LockedAt          *time.Time `json:"lockedAt,omitempty"`
}

func (r Run) Key() RunKey {
	return RunKey{Period: r.Period(), RunType: r.RunType}
}

func (r Run) Period() Period {
	return Period{Month: r.Month, Year: r.Year}
}

func (r Run) IsLocked() bool {
	return r.Status == RunStatusLocked
}

type Deductions struct {
	Tax         decimal.Decimal `json:"tax"`
	Pension     decimal.Decimal `json:"pension"`
	HealthLevy  decimal.Decimal `json:"healthLevy"`
	HousingLevy decimal.Decimal `json:"housingLevy"`
}

func (d Deductions) Total() decimal.Decimal {
	return d.Tax.Add(d.Pension).Add(d.HealthLevy).Add(d.HousingLevy)
}

func (d Deductions) negative() bool {
	return d.Tax.IsNegative() || d.Pension.IsNegative() || d.HealthLevy.IsNegative() || d.HousingLevy.IsNegative()
}

// Entry is one employee's pay within a run. Employee fields are a snapshot
// taken from the directory at generation time.
type Entry struct {
	ID                   int64           `json:"id"`
	RunID                int64           `json:"runId"`
	EmployeeID           int64           `json:"employeeId"`
	EmployeeName         string          `json:"employeeName"`
	Department           string          `json:"department"`
	Phone                string          `json:"phone,omitempty"`
	BankName             string          `json:"bankName,omitempty"`
	BankAccount          string          `json:"bankAccount,omitempty"`
	BasicSalary          decimal.Decimal `json:"basicSalary"`
	Allowances           decimal.Decimal `json:"allowances"`
	Gross                decimal.Decimal `json:"gross"`
	Deductions           Deductions      `json:"deductions"`
	AdjustmentDeductions decimal.Decimal `json:"adjustmentDeductions"`
	Net                  decimal.Decimal `json:"net"`
	Paid                 bool            `json:"paid"`
	PaymentStatus        PaymentStatus   `json:"paymentStatus"`
	PaymentReference     string          `json:"paymentReference,omitempty"`
	PaymentNote          string          `json:"paymentNote,omitempty"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
}

// Disbursed reports whether money for this entry has left, or may have left.
func (e Entry) Disbursed() bool {
	switch e.PaymentStatus {
	case PaymentStatusPaid, PaymentStatusSubmitting, PaymentStatusUnconfirmed:
		return true
	}
	return false
}

func (e Entry) eligibleForDisbursement() bool {
	return e.PaymentStatus == PaymentStatusUnpaid || e.PaymentStatus == PaymentStatusRejected
}

type Adjustment struct {
	ID          int64           `json:"id"`
	RunID       int64           `json:"runId"`
	EmployeeID  int64           `json:"employeeId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        AdjustmentType  `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type RunSummary struct {
	RunID                     int64           `json:"runId"`
	TotalEmployees            int             `json:"totalEmployees"`
	TotalGross                decimal.Decimal `json:"totalGross"`
	TotalTax                  decimal.Decimal `json:"totalTax"`
	TotalPension              decimal.Decimal `json:"totalPension"`
	TotalHealthLevy           decimal.Decimal `json:"totalHealthLevy"`
	TotalHousingLevy          decimal.Decimal `json:"totalHousingLevy"`
	TotalAdjustmentDeductions decimal.Decimal `json:"totalAdjustmentDeductions"`
	TotalNet                  decimal.Decimal `json:"totalNet"`
	PaidEntries               int             `json:"paidEntries"`
	UnpaidEntries             int             `json:"unpaidEntries"`
}

type GenerateRequest struct {
	Month             int     `json:"month"`
	Year              int     `json:"year"`
	RunType           RunType `json:"runType"`
	OverrideConfirmed bool    `json:"overrideConfirmed"`
}

func (r GenerateRequest) Key() RunKey {
	return RunKey{Period: Period{Month: r.Month, Year: r.Year}, RunType: r.RunType}
}

// GenerateResult is exactly one of: a newly committed run, an existing run
// for the same key, or a refusal to commit pending override.
type GenerateResult struct {
	Outcome  GenerateOutcome `json:"outcome"`
	Run      *Run            `json:"run,omitempty"`
	Summary  *RunSummary     `json:"summary,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (r GenerateResult) NeedsOverride() bool {
	return r.Outcome == OutcomeNeedsOverride
}

type AddAdjustmentRequest struct {
	RunID       int64           `json:"runId"`
	EmployeeID  int64           `json:"employeeId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        AdjustmentType  `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
}

// AdjustmentResult is the authoritative state after an adjustment mutation.
type AdjustmentResult struct {
	Adjustment Adjustment `json:"adjustment"`
	Entry      Entry      `json:"entry"`
	Summary    RunSummary `json:"summary"`
}

type PaymentInstruction struct {
	Reference    string          `json:"reference"`
	RunID        int64           `json:"runId"`
	EntryID      int64           `json:"entryId"`
	EmployeeID   int64           `json:"employeeId"`
	EmployeeName string          `json:"employeeName"`
	Phone        string          `json:"phone"`
	Amount       decimal.Decimal `json:"amount"`
	Remarks      string          `json:"remarks"`
}

type PaymentAck struct {
	Accepted  bool
	Reference string
	Reason    string
}

type InstructionResult struct {
	EntryID     int64         `json:"entryId"`
	EmployeeID  int64         `json:"employeeId"`
	Reference   string        `json:"reference"`
	Status      PaymentStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	RetryUnsafe bool          `json:"retryUnsafe"`
}

type DisbursementBatch struct {
	ID          string              `json:"id"`
	RunID       int64               `json:"runId"`
	Submitted   int                 `json:"submitted"`
	Accepted    int                 `json:"accepted"`
	Rejected    int                 `json:"rejected"`
	Unconfirmed int                 `json:"unconfirmed"`
	Skipped     int                 `json:"skipped"`
	Results     []InstructionResult `json:"results"`
	CreatedAt   time.Time           `json:"createdAt"`

	// BatchRecorded is false when the batch could not be persisted, so no
	// stored record of this submission exists.
	BatchRecorded bool `json:"batchRecorded"`
}

// RetryUnsafe reports whether any instruction has an unknown or unrecorded outcome.
func (b DisbursementBatch) RetryUnsafe() bool {
	for _, result := range b.Results {
		if result.RetryUnsafe {
			return true
		}
	}
	return b.Unconfirmed > 0
}

type PaymentOutcome struct {
	EntryID   int64
	Status    PaymentStatus
	Reference string
	Note      string
	At        time.Time
}

type DocumentSpec struct {
	Kind       DocumentKind `json:"kind"`
	EmployeeID int64        `json:"employeeId,omitempty"`
}

type FileHandle struct {
	ID          string       `json:"id"`
	RunID       int64        `json:"runId,omitempty"`
	EmployeeID  int64        `json:"employeeId,omitempty"`
	Kind        DocumentKind `json:"kind"`
	FileName    string       `json:"fileName"`
	ContentType string       `json:"contentType"`
	Size        int          `json:"size"`
	Path        string       `json:"-"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

type DeliveryReport struct {
	RunID     int64   `json:"runId"`
	Sent      int     `json:"sent"`
	Skipped   []int64 `json:"skipped,omitempty"`
	Failed    []int64 `json:"failed,omitempty"`
	Requested int     `json:"requested"`
}
