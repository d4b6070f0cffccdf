package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/notifications"
)

// Exports requests documents from the renderer and hands tax cards and
// payslips to the notifier. It only reads run state.
type Exports struct {
	store     StoreAPI
	directory Directory
	renderer  Renderer
	files     FileStore
	notifier  Notifier
	jobs      JobQueue
	currency  string
	now       func() time.Time
}

func NewExports(store StoreAPI, dir Directory, renderer Renderer, files FileStore, notifier Notifier, jobs JobQueue, currency string) *Exports {
	return &Exports{
		store:     store,
		directory: dir,
		renderer:  renderer,
		files:     files,
		notifier:  notifier,
		jobs:      jobs,
		currency:  currency,
		now:       time.Now,
	}
}

func (e *Exports) RequestDocument(ctx context.Context, runID int64, spec DocumentSpec) (FileHandle, error) {
	if !spec.Kind.forRun() {
		return FileHandle{}, invalid("kind", "is not a run document")
	}
	if spec.Kind == DocumentPayslip && spec.EmployeeID <= 0 {
		return FileHandle{}, invalid("employeeId", "is required for a payslip")
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return FileHandle{}, err
	}
	entries, err := e.store.ListEntries(ctx, runID)
	if err != nil {
		return FileHandle{}, err
	}
	req := DocumentRequest{
		Kind:     spec.Kind,
		Currency: e.currency,
		Run:      run,
		Summary:  Summarize(runID, entries),
		Entries:  entries,
	}

	switch spec.Kind {
	case DocumentPayslip:
		entry, ok := findEntry(entries, spec.EmployeeID)
		if !ok {
			return FileHandle{}, notFound("payroll entry for employee", spec.EmployeeID)
		}
		req.Entries = []Entry{entry}
		adjustments, err := e.store.ListAdjustments(ctx, runID, spec.EmployeeID)
		if err != nil {
			return FileHandle{}, err
		}
		req.Adjustments = map[int64][]Adjustment{spec.EmployeeID: adjustments}
	case DocumentPayslipBundle:
		adjustments, err := e.store.ListRunAdjustments(ctx, runID)
		if err != nil {
			return FileHandle{}, err
		}
		req.Adjustments = groupByEmployee(adjustments)
	}

	if spec.Kind != DocumentRegister && spec.Kind != DocumentJournal {
		employees, err := e.employeesFor(ctx, req.Entries)
		if err != nil {
			return FileHandle{}, &DocumentGenerationError{Kind: spec.Kind, Err: err}
		}
		req.Employees = employees
	}

	artifact, err := e.renderer.Render(ctx, req)
	if err != nil {
		return FileHandle{}, &DocumentGenerationError{Kind: spec.Kind, Err: err}
	}
	employeeID := int64(0)
	if spec.Kind == DocumentPayslip {
		employeeID = spec.EmployeeID
	}
	return e.persist(ctx, runID, employeeID, spec.Kind, artifact)
}

func (e *Exports) employeesFor(ctx context.Context, entries []Entry) (map[int64]directory.Employee, error) {
	out := make(map[int64]directory.Employee, len(entries))
	for _, entry := range entries {
		emp, err := e.directory.Employee(ctx, entry.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("load employee %d: %w", entry.EmployeeID, err)
		}
		out[entry.EmployeeID] = emp
	}
	return out, nil
}

func (e *Exports) persist(ctx context.Context, runID, employeeID int64, kind DocumentKind, artifact Artifact) (FileHandle, error) {
	id := uuid.NewString()
	path, err := e.files.Put(ctx, id+"-"+artifact.FileName, artifact.Data)
	if err != nil {
		return FileHandle{}, &DocumentGenerationError{Kind: kind, Err: err}
	}
	handle := FileHandle{
		ID:          id,
		RunID:       runID,
		EmployeeID:  employeeID,
		Kind:        kind,
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Size:        len(artifact.Data),
		Path:        path,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.SaveDocument(ctx, handle); err != nil {
		return FileHandle{}, err
	}
	return handle, nil
}

// Open returns a previously generated document and its bytes.
func (e *Exports) Open(ctx context.Context, documentID string) (FileHandle, []byte, error) {
	handle, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return FileHandle{}, nil, err
	}
	data, err := e.files.Get(ctx, handle.Path)
	if err != nil {
		return FileHandle{}, nil, err
	}
	return handle, data, nil
}

// EmailTaxCard renders the employee's annual tax card from locked runs and
// mails it. The address is checked before anything is rendered.
func (e *Exports) EmailTaxCard(ctx context.Context, employeeID int64, year int) error {
	if year < MinYear || year > MaxYear {
		return invalid("year", fmt.Sprintf("must be between %d and %d", MinYear, MaxYear))
	}
	emp, err := e.directory.Employee(ctx, employeeID)
	if errors.Is(err, directory.ErrNotFound) {
		return notFound("employee", employeeID)
	}
	if err != nil {
		return err
	}
	if !validAddress(emp.Email) {
		return &DeliveryError{EmployeeID: employeeID, Reason: "no valid email address on file"}
	}

	lines, err := e.store.TaxCardLines(ctx, employeeID, year)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return &DocumentGenerationError{Kind: DocumentTaxCard, Err: fmt.Errorf("no locked payroll for employee %d in %d", employeeID, year)}
	}

	artifact, err := e.renderer.Render(ctx, DocumentRequest{
		Kind:      DocumentTaxCard,
		Currency:  e.currency,
		Employees: map[int64]directory.Employee{emp.ID: emp},
		TaxYear:   year,
		TaxCard:   lines,
	})
	if err != nil {
		return &DocumentGenerationError{Kind: DocumentTaxCard, Err: err}
	}
	if _, err := e.persist(ctx, 0, employeeID, DocumentTaxCard, artifact); err != nil {
		return err
	}

	if err := e.notifier.SendTaxCard(ctx, emp, year, attachmentFor(artifact)); err != nil {
		return &DeliveryError{EmployeeID: employeeID, Reason: "mail transport failed", Err: err}
	}
	return nil
}

// SchedulePayslipDelivery queues a background job that renders and mails a
// payslip to every employee of a locked run.
func (e *Exports) SchedulePayslipDelivery(ctx context.Context, runID int64) (DeliveryReport, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return DeliveryReport{}, err
	}
	if !run.IsLocked() {
		return DeliveryReport{}, invalid("runId", "run must be locked before payslips are delivered")
	}
	entries, err := e.store.ListEntries(ctx, runID)
	if err != nil {
		return DeliveryReport{}, err
	}
	e.jobs.Enqueue(JobPayslipDelivery, func(jobCtx context.Context) (any, error) {
		return e.DeliverPayslips(jobCtx, runID)
	})
	return DeliveryReport{RunID: runID, Requested: len(entries)}, nil
}

// DeliverPayslips mails each entry's payslip. Employees without a usable
// address are skipped; send failures are collected, not fatal.
func (e *Exports) DeliverPayslips(ctx context.Context, runID int64) (DeliveryReport, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return DeliveryReport{}, err
	}
	entries, err := e.store.ListEntries(ctx, runID)
	if err != nil {
		return DeliveryReport{}, err
	}
	report := DeliveryReport{RunID: runID, Requested: len(entries)}
	for _, entry := range entries {
		emp, err := e.directory.Employee(ctx, entry.EmployeeID)
		if err != nil || !validAddress(emp.Email) {
			report.Skipped = append(report.Skipped, entry.EmployeeID)
			continue
		}
		adjustments, err := e.store.ListAdjustments(ctx, runID, entry.EmployeeID)
		if err != nil {
			return report, err
		}
		artifact, err := e.renderer.Render(ctx, DocumentRequest{
			Kind:        DocumentPayslip,
			Currency:    e.currency,
			Run:         run,
			Entries:     []Entry{entry},
			Adjustments: map[int64][]Adjustment{entry.EmployeeID: adjustments},
			Employees:   map[int64]directory.Employee{emp.ID: emp},
		})
		if err != nil {
			slog.Warn("payslip render failed", "runId", runID, "employeeId", entry.EmployeeID, "err", err)
			report.Failed = append(report.Failed, entry.EmployeeID)
			continue
		}
		if err := e.notifier.SendPayslip(ctx, emp, run.Period().String(), attachmentFor(artifact)); err != nil {
			slog.Warn("payslip delivery failed", "runId", runID, "employeeId", entry.EmployeeID, "err", err)
			report.Failed = append(report.Failed, entry.EmployeeID)
			continue
		}
		report.Sent++
	}
	if report.Sent == 0 && len(report.Failed) > 0 {
		return report, errors.New("no payslips delivered")
	}
	return report, nil
}

func validAddress(raw string) bool {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Address == addr
}

func attachmentFor(artifact Artifact) notifications.Attachment {
	return notifications.Attachment{
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Data:        artifact.Data,
	}
}

func findEntry(entries []Entry, employeeID int64) (Entry, bool) {
	for _, entry := range entries {
		if entry.EmployeeID == employeeID {
			return entry, true
		}
	}
	return Entry{}, false
}

func groupByEmployee(adjustments []Adjustment) map[int64][]Adjustment {
	out := make(map[int64][]Adjustment)
	for _, adj := range adjustments {
		out[adj.EmployeeID] = append(out[adj.EmployeeID], adj)
	}
	return out
}
