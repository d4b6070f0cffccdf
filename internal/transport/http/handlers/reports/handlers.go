package reportshandler

import (
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"payrun/internal/domain/audit"
	"payrun/internal/domain/auth"
	"payrun/internal/domain/payroll"
	"payrun/internal/domain/reports"
	"payrun/internal/platform/jobs"
	"payrun/internal/transport/http/api"
	"payrun/internal/transport/http/middleware"
	"payrun/internal/transport/http/shared"
)

type Handler struct {
	Exports *payroll.Exports
	Stats   *reports.Service
	// Store is nil without a database; job history then comes from Jobs.
	Store *reports.Store
	Jobs  *jobs.Service
	Audit *audit.Service
	Perms middleware.PermissionStore
}

func NewHandler(exports *payroll.Exports, stats *reports.Service, store *reports.Store, jobService *jobs.Service, auditService *audit.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Exports: exports, Stats: stats, Store: store, Jobs: jobService, Audit: auditService, Perms: perms}
}

type documentPayload struct {
	Kind       string `json:"kind"`
	EmployeeID int64  `json:"employeeId"`
}

type taxCardPayload struct {
	EmployeeID int64 `json:"employeeId"`
	Year       int   `json:"year"`
}

type taxCardResponse struct {
	EmployeeID int64  `json:"employeeId"`
	Year       int    `json:"year"`
	Status     string `json:"status"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/stats", h.handleStats)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/jobs", h.handleListJobs)
		r.With(middleware.RequirePermission(auth.PermReportsExport, h.Perms)).Post("/runs/{runID}/documents", h.handleRequestDocument)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/documents/{documentID}/download", h.handleDownload)
		r.With(middleware.RequirePermission(auth.PermReportsExport, h.Perms)).Post("/runs/{runID}/payslips/deliver", h.handleDeliverPayslips)
		r.With(middleware.RequirePermission(auth.PermReportsExport, h.Perms)).Post("/tax-cards", h.handleEmailTaxCard)
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.Stats(r.Context())
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}
	api.Success(w, stats, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		api.Success(w, h.Jobs.Recent(), middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	filter := reports.JobRunFilter{
		JobType: r.URL.Query().Get("jobType"),
		Status:  r.URL.Query().Get("status"),
	}
	total, err := h.Store.CountJobRuns(r.Context(), filter)
	if err != nil {
		log.Printf("job runs count failed: %v", err)
	}
	runs, err := h.Store.ListJobRuns(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRequestDocument(w http.ResponseWriter, r *http.Request) {
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

	var payload documentPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	validator.Required("kind", payload.Kind, "is required")
	validator.Enum("kind", payload.Kind, runDocumentKinds(), "is not a run document")
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	handle, err := h.Exports.RequestDocument(r.Context(), runID, payroll.DocumentSpec{
		Kind:       payroll.DocumentKind(payload.Kind),
		EmployeeID: payload.EmployeeID,
	})
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "report.document.generate", "document", handle.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, handle); err != nil {
		log.Printf("audit report.document.generate failed: %v", err)
	}
	api.Created(w, handle, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	handle, data, err := h.Exports.Open(r.Context(), documentID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	w.Header().Set("Content-Type", handle.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": handle.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("document download write failed: %v", err)
	}
}

func (h *Handler) handleDeliverPayslips(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.Exports.SchedulePayslipDelivery(r.Context(), runID)
	if err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.UserID, "report.payslips.deliver", "payroll_run", strconv.FormatInt(runID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, report); err != nil {
		log.Printf("audit report.payslips.deliver failed: %v", err)
	}
	api.WriteJSON(w, http.StatusAccepted, api.Envelope{Success: true, Data: report, RequestID: middleware.GetRequestID(r.Context())})
}

func (h *Handler) handleEmailTaxCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload taxCardPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	validator := shared.NewValidator()
	validator.Positive("employeeId", payload.EmployeeID, "must be a positive integer")
	if validator.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	if err := h.Exports.EmailTaxCard(r.Context(), payload.EmployeeID, payload.Year); err != nil {
		shared.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
		return
	}

	response := taxCardResponse{EmployeeID: payload.EmployeeID, Year: payload.Year, Status: "sent"}
	if err := h.Audit.Record(r.Context(), user.UserID, "report.tax_card.email", "employee", strconv.FormatInt(payload.EmployeeID, 10), middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, response); err != nil {
		log.Printf("audit report.tax_card.email failed: %v", err)
	}
	api.Success(w, response, middleware.GetRequestID(r.Context()))
}

func runDocumentKinds() []string {
	kinds := make([]string, 0, len(payroll.RunDocumentKinds))
	for _, kind := range payroll.RunDocumentKinds {
		kinds = append(kinds, string(kind))
	}
	return kinds
}
