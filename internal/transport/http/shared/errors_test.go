package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrun/internal/domain/payroll"
	"payrun/internal/transport/http/api"
)

func writeErr(t *testing.T, err error) (int, api.Error) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs/1/lock", nil)
	WriteError(rec, req, "req-1", err)

	var envelope struct {
		Success   bool      `json:"success"`
		Error     api.Error `json:"error"`
		RequestID string    `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "req-1", envelope.RequestID)
	return rec.Code, envelope.Error
}

func TestWriteErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"locked", &payroll.LockedRunError{RunID: 4, Key: payroll.RunKey{Period: payroll.Period{Month: 1, Year: 2026}, RunType: payroll.RunTypeRegular}}, http.StatusConflict, "run_locked"},
		{"not found", &payroll.NotFoundError{Resource: "payroll run", ID: "9"}, http.StatusNotFound, "not_found"},
		{"engine", &payroll.EngineError{Err: errors.New("boom")}, http.StatusBadGateway, "engine_error"},
		{"gateway", &payroll.GatewayError{RunID: 1, Err: errors.New("dial")}, http.StatusBadGateway, "gateway_error"},
		{"gateway missing", &payroll.GatewayError{RunID: 1, Err: payroll.ErrGatewayNotConfigured}, http.StatusServiceUnavailable, "gateway_not_configured"},
		{"document", &payroll.DocumentGenerationError{Kind: payroll.DocumentPayslip, Err: errors.New("pdf")}, http.StatusInternalServerError, "document_generation_failed"},
		{"delivery", &payroll.DeliveryError{EmployeeID: 3, Reason: "invalid email address"}, http.StatusUnprocessableEntity, "delivery_failed"},
		{"nothing", payroll.ErrNothingToDisburse, http.StatusConflict, "nothing_to_disburse"},
		{"disbursed", payroll.ErrEntryDisbursed, http.StatusConflict, "entry_disbursed"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, apiErr := writeErr(t, tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestWriteErrorValidationCarriesFields(t *testing.T) {
	err := &payroll.ValidationError{Issues: []payroll.FieldIssue{{Field: "month", Reason: "must be between 1 and 12"}}}
	status, apiErr := writeErr(t, err)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", apiErr.Code)
	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	fields, ok := details["fields"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "month", fields[0].(map[string]any)["field"])
}

func TestWriteErrorDoesNotLeakInternalMessage(t *testing.T) {
	_, apiErr := writeErr(t, errors.New("password authentication failed for user payroll"))
	assert.Equal(t, "internal error", apiErr.Message)
}
