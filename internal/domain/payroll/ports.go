package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/notifications"
)

type ComputeRequest struct {
	Period            Period
	RunType           RunType
	Employees         []directory.Employee
	OverrideConfirmed bool
}

type Computation struct {
	EmployeeID  int64
	BasicSalary decimal.Decimal
	Allowances  decimal.Decimal
	Gross       decimal.Decimal
	Deductions  Deductions
	Net         decimal.Decimal
}

type ComputeResult struct {
	Computations []Computation
	Warnings     []string
}

// Engine computes statutory deductions and pay for a set of employees.
// Warnings are anomalies that block a commit unless overridden.
type Engine interface {
	Compute(ctx context.Context, req ComputeRequest) (ComputeResult, error)
}

// Gateway submits one payment instruction. A nil error with Accepted false
// is a definite rejection; a non-nil error leaves the outcome unknown.
type Gateway interface {
	Submit(ctx context.Context, instruction PaymentInstruction) (PaymentAck, error)
}

type DocumentRequest struct {
	Kind        DocumentKind
	Currency    string
	Run         Run
	Summary     RunSummary
	Entries     []Entry
	Adjustments map[int64][]Adjustment
	Employees   map[int64]directory.Employee
	TaxYear     int
	TaxCard     []TaxCardLine
}

type Renderer interface {
	Render(ctx context.Context, req DocumentRequest) (Artifact, error)
}

type FileStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

type Directory interface {
	ActiveEmployees(ctx context.Context, asOf time.Time) ([]directory.Employee, error)
	Employee(ctx context.Context, id int64) (directory.Employee, error)
}

type Notifier interface {
	SendTaxCard(ctx context.Context, employee directory.Employee, year int, attachment notifications.Attachment) error
	SendPayslip(ctx context.Context, employee directory.Employee, period string, attachment notifications.Attachment) error
}

type JobQueue interface {
	Enqueue(jobType string, run func(context.Context) (any, error))
}

type TaxCardLine struct {
	Period     Period          `json:"period"`
	Gross      decimal.Decimal `json:"gross"`
	Deductions Deductions      `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}
