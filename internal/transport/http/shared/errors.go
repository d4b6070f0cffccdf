package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/payroll"
	"payrun/internal/transport/http/api"
)

// WriteError maps the payroll error taxonomy to a status and a stable code.
// Anything unrecognised is logged and reported as an internal error.
func WriteError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	var validation *payroll.ValidationError
	if errors.As(err, &validation) {
		issues := make([]ValidationIssue, 0, len(validation.Issues))
		for _, issue := range validation.Issues {
			issues = append(issues, ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		FailValidation(w, requestID, issues)
		return
	}

	var locked *payroll.LockedRunError
	var delivery *payroll.DeliveryError
	switch {
	case errors.As(err, &locked):
		api.FailWithDetails(w, http.StatusConflict, "run_locked", err.Error(),
			map[string]any{"runId": locked.RunID, "period": locked.Key.Period.String(), "runType": locked.Key.RunType}, requestID)
	case errors.Is(err, payroll.ErrRunLocked):
		api.Fail(w, http.StatusConflict, "run_locked", err.Error(), requestID)
	case errors.Is(err, payroll.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrNothingToDisburse):
		api.Fail(w, http.StatusConflict, "nothing_to_disburse", err.Error(), requestID)
	case errors.Is(err, payroll.ErrEntryDisbursed):
		api.Fail(w, http.StatusConflict, "entry_disbursed", err.Error(), requestID)
	case errors.Is(err, payroll.ErrGatewayNotConfigured):
		api.Fail(w, http.StatusServiceUnavailable, "gateway_not_configured", err.Error(), requestID)
	case errors.Is(err, payroll.ErrGateway):
		api.FailWithDetails(w, http.StatusBadGateway, "gateway_error", err.Error(),
			map[string]any{"retrySafe": true}, requestID)
	case errors.Is(err, payroll.ErrEngine):
		api.Fail(w, http.StatusBadGateway, "engine_error", err.Error(), requestID)
	case errors.As(err, &delivery):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "delivery_failed", err.Error(),
			map[string]any{"employeeId": delivery.EmployeeID, "reason": delivery.Reason}, requestID)
	case errors.Is(err, payroll.ErrDocumentGeneration):
		slog.Warn("document generation failed", "path", r.URL.Path, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "document_generation_failed", "document generation failed", requestID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		api.Fail(w, http.StatusServiceUnavailable, "request_cancelled", "request cancelled before completion", requestID)
	default:
		slog.Warn("request failed", "method", r.Method, "path", r.URL.Path, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal error", requestID)
	}
}
