package payrollhandler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"payrun/internal/domain/audit"
	"payrun/internal/domain/auth"
	"payrun/internal/domain/payroll"
	"payrun/internal/platform/metrics"
	"payrun/internal/transport/http/api"
	"payrun/internal/transport/http/middleware"
	"payrun/internal/transport/http/shared"
)

type Handler struct {
	Service     *payroll.Service
	Audit       *audit.Service
	Idempotency *middleware.IdempotencyStore
	Metrics     *metrics.Collector
	Perms       middleware.PermissionStore
}

func NewHandler(service *payroll.Service, auditService *audit.Service, idempotency *middleware.IdempotencyStore, collector *metrics.Collector, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Audit: auditService, Idempotency: idempotency, Metrics: collector, Perms: perms}
}

type adjustmentPayload struct {
	EmployeeID  int64                  `json:"employeeId"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Type        payroll.AdjustmentType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
}

type lockResponse struct {
	Run           payroll.Run `json:"run"`
	AlreadyLocked bool        `json:"alreadyLocked"`
}

type disburseResponse struct {
	payroll.DisbursementBatch
	RetryUnsafe bool `json:"retryUnsafe"`
}

type markPaidResponse struct {
	RunID      int64 `json:"runId"`
	MarkedPaid int   `json:"markedPaid"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/runs/generate", h.handleGenerate)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}", h.handleGetRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/entries", h.handleListEntries)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/summary", h.handleSummary)
		r.With(middleware.RequirePermission(auth.PermPayrollLock, h.Perms)).Post("/runs/{runID}/lock", h.handleLock)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/employees/{employeeID}/adjustments", h.handleListAdjustments)
		r.With(middleware.RequirePermission(auth.PermPayrollAdjust, h.Perms)).Post("/runs/{runID}/adjustments", h.handleAddAdjustment)
		r.With(middleware.RequirePermission(auth.PermPayrollAdjust, h.Perms)).Delete("/adjustments/{adjustmentID}", h.handleRemoveAdjustment)
		r.With(middleware.RequirePermission(auth.PermPayrollDisburse, h.Perms)).Post("/runs/{runID}/disburse", h.handleDisburse)
		r.With(middleware.RequirePermission(auth.PermPayrollDisburse, h.Perms)).Post("/runs/{runID}/mark-paid", h.handleMarkPaid)
	})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	runs, total, err := h.Service.Runs.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload payroll.GenerateRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if payload.RunType == "" {
		payload.RunType = payroll.RunTypeRegular
	}

	result, err := h.Service.Runs.Generate(r.Context(), payload)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	switch result.Outcome {
	case payroll.OutcomeCommitted:
		h.Metrics.Add("payroll.runs.committed", 1)
		if err := h.Audit.Record(r.Context(), user.UserID, "payroll.run.generate", "payroll_run", strconv.FormatInt(result.Run.ID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, result.Run); err != nil {
			log.Printf("audit payroll.run.generate failed: %v", err)
		}
		api.Created(w, result, middleware.GetRequestID(r.Context()))
	case payroll.OutcomeNeedsOverride:
		h.Metrics.Add("payroll.runs.override_required", 1)
		if err := h.Audit.Record(r.Context(), user.UserID, "payroll.run.override_required", "payroll_run", payload.Key().String(), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, result.Warnings); err != nil {
			log.Printf("audit payroll.run.override_required failed: %v", err)
		}
		api.Success(w, result, middleware.GetRequestID(r.Context()))
	default:
		api.Success(w, result, middleware.GetRequestID(r.Context()))
	}
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}
	run, err := h.Service.Runs.Get(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}
	entries, err := h.Service.Runs.Entries(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}
	summary, err := h.Service.Summaries.Recompute(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}

	run, err := h.Service.Runs.Lock(r.Context(), runID)
	var already *payroll.AlreadyLockedError
	if errors.As(err, &already) {
		api.Success(w, lockResponse{Run: already.Run, AlreadyLocked: true}, middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "payroll.run.lock", "payroll_run", strconv.FormatInt(runID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, run); err != nil {
		log.Printf("audit payroll.run.lock failed: %v", err)
	}
	api.Success(w, lockResponse{Run: run}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	runID, okRun := shared.PathInt64(r, "runID")
	employeeID, okEmployee := shared.PathInt64(r, "employeeID")
	if !okRun || !okEmployee {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id and employee id must be positive integers", middleware.GetRequestID(r.Context()))
		return
	}
	adjustments, err := h.Service.Adjustments.ListFor(r.Context(), runID, employeeID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	api.Success(w, adjustments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddAdjustment(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}

	var payload adjustmentPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	result, err := h.Service.Adjustments.Add(r.Context(), payroll.AddAdjustmentRequest{
		RunID:       runID,
		EmployeeID:  payload.EmployeeID,
		Name:        payload.Name,
		Description: payload.Description,
		Type:        payload.Type,
		Amount:      payload.Amount,
	})
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "payroll.adjustment.create", "payroll_adjustment", strconv.FormatInt(result.Adjustment.ID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, result.Adjustment); err != nil {
		log.Printf("audit payroll.adjustment.create failed: %v", err)
	}
	api.Created(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRemoveAdjustment(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	adjustmentID, ok := shared.PathInt64(r, "adjustmentID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "adjustment id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}

	result, err := h.Service.Adjustments.Remove(r.Context(), adjustmentID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "payroll.adjustment.delete", "payroll_adjustment", strconv.FormatInt(adjustmentID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), result.Adjustment, nil); err != nil {
		log.Printf("audit payroll.adjustment.delete failed: %v", err)
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDisburse(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash([]byte(strconv.FormatInt(runID, 10)))
	if idempotencyKey != "" {
		stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, "payroll.disburse", idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used for a different run", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			log.Printf("idempotency check failed: %v", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	batch, err := h.Service.Disbursements.DisburseMobileMoney(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	h.Metrics.Add("disbursement.accepted", batch.Accepted)
	h.Metrics.Add("disbursement.rejected", batch.Rejected)
	h.Metrics.Add("disbursement.unconfirmed", batch.Unconfirmed)
	h.Metrics.Add("disbursement.skipped", batch.Skipped)

	if err := h.Audit.Record(r.Context(), user.UserID, "payroll.run.disburse", "payroll_run", strconv.FormatInt(runID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, batch); err != nil {
		log.Printf("audit payroll.run.disburse failed: %v", err)
	}

	response := disburseResponse{DisbursementBatch: batch, RetryUnsafe: batch.RetryUnsafe()}
	if idempotencyKey != "" {
		payload, err := json.Marshal(response)
		if err != nil {
			log.Printf("disburse response marshal failed: %v", err)
		} else if err := h.Idempotency.Save(r.Context(), user.UserID, "payroll.disburse", idempotencyKey, requestHash, payload); err != nil {
			log.Printf("idempotency save failed: %v", err)
		}
	}
	api.Success(w, response, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	runID, ok := shared.PathInt64(r, "runID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "run id must be a positive integer", middleware.GetRequestID(r.Context()))
		return
	}

	changed, err := h.Service.Disbursements.MarkManuallyPaid(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	h.Metrics.Add("disbursement.manual", changed)

	response := markPaidResponse{RunID: runID, MarkedPaid: changed}
	if err := h.Audit.Record(r.Context(), user.UserID, "payroll.run.mark_paid", "payroll_run", strconv.FormatInt(runID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, response); err != nil {
		log.Printf("audit payroll.run.mark_paid failed: %v", err)
	}
	api.Success(w, response, middleware.GetRequestID(r.Context()))
}
