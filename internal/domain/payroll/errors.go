package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrRunLocked            = errors.New("payroll run is locked")
	ErrAlreadyLocked        = errors.New("payroll run already locked")
	ErrEngine               = errors.New("calculation engine failed")
	ErrGateway              = errors.New("disbursement gateway failed")
	ErrGatewayNotConfigured = errors.New("disbursement gateway not configured")
	ErrDocumentGeneration   = errors.New("document generation failed")
	ErrDelivery             = errors.New("delivery failed")
	ErrNothingToDisburse    = errors.New("payroll run has no unpaid entries")
	ErrEntryDisbursed       = errors.New("payroll entry already disbursed")
	ErrNotSubmitting        = errors.New("payroll entry is not awaiting a gateway outcome")
)

type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+" "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, reason string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

func invalid(field, reason string) error {
	return &ValidationError{Issues: []FieldIssue{{Field: field, Reason: reason}}}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

type LockedRunError struct {
	RunID int64
	Key   RunKey
}

func (e *LockedRunError) Error() string {
	return fmt.Sprintf("payroll run %d (%s) is locked and its entries are immutable; use an off-cycle run for corrections", e.RunID, e.Key)
}

func (e *LockedRunError) Unwrap() error {
	return ErrRunLocked
}

// AlreadyLockedError is soft: the run is in the requested state.
type AlreadyLockedError struct {
	Run Run
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("payroll run %d already locked", e.Run.ID)
}

func (e *AlreadyLockedError) Unwrap() error {
	return ErrAlreadyLocked
}

type EngineError struct {
	Key RunKey
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("calculation engine failed for %s: %v", e.Key, e.Err)
}

func (e *EngineError) Unwrap() []error {
	return []error{ErrEngine, e.Err}
}

// GatewayError means no instruction in the batch reached the gateway.
type GatewayError struct {
	RunID int64
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("disbursement for run %d failed before submission: %v", e.RunID, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrGateway, e.Err}
}

type DocumentGenerationError struct {
	Kind DocumentKind
	Err  error
}

func (e *DocumentGenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Kind, e.Err)
}

func (e *DocumentGenerationError) Unwrap() []error {
	return []error{ErrDocumentGeneration, e.Err}
}

type DeliveryError struct {
	EmployeeID int64
	Reason     string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to employee %d failed: %s: %v", e.EmployeeID, e.Reason, e.Err)
	}
	return fmt.Sprintf("delivery to employee %d failed: %s", e.EmployeeID, e.Reason)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDelivery}
	}
	return []error{ErrDelivery, e.Err}
}

// IsClientError reports whether err was caused by the request rather than
// by a failing dependency.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRunLocked) ||
		errors.Is(err, ErrNothingToDisburse) ||
		errors.Is(err, ErrEntryDisbursed)
}
