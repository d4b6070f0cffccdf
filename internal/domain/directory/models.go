package directory

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive     = "active"
	StatusTerminated = "terminated"
)

var ErrNotFound = errors.New("employee not found")

type Employee struct {
	ID          int64           `json:"id"`
	Number      string          `json:"employeeNumber"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Department  string          `json:"department"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	BankName    string          `json:"bankName"`
	BankAccount string          `json:"bankAccount,omitempty"`
	KRAPIN      string          `json:"kraPin,omitempty"`
	NSSFNumber  string          `json:"nssfNumber,omitempty"`
	SHIFNumber  string          `json:"shifNumber,omitempty"`
	BasicSalary decimal.Decimal `json:"basicSalary"`
	Allowances  decimal.Decimal `json:"allowances"`
	Status      string          `json:"status"`
	HiredAt     time.Time       `json:"hiredAt"`
}

func (e Employee) DisplayName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// ActiveOn reports whether the employee should be paid for a period ending at asOf.
func (e Employee) ActiveOn(asOf time.Time) bool {
	return e.Status == StatusActive && !e.HiredAt.After(asOf)
}
