package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/notifications"
)

// flatEngine deducts a fixed tax from every employee's gross pay.
type flatEngine struct {
	mu       sync.Mutex
	tax      decimal.Decimal
	warnings []string
	err      error
	skew     decimal.Decimal
	calls    int
	block    bool
}

func (e *flatEngine) Compute(ctx context.Context, req ComputeRequest) (ComputeResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.block {
		<-ctx.Done()
		return ComputeResult{}, ctx.Err()
	}
	if e.err != nil {
		return ComputeResult{}, e.err
	}
	result := ComputeResult{Warnings: e.warnings}
	for _, emp := range req.Employees {
		gross := emp.BasicSalary.Add(emp.Allowances)
		result.Computations = append(result.Computations, Computation{
			EmployeeID:  emp.ID,
			BasicSalary: emp.BasicSalary,
			Allowances:  emp.Allowances,
			Gross:       gross,
			Deductions:  Deductions{Tax: e.tax, Pension: decimal.Zero, HealthLevy: decimal.Zero, HousingLevy: decimal.Zero},
			Net:         gross.Sub(e.tax).Add(e.skew),
		})
	}
	return result, nil
}

func (e *flatEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// scriptedGateway accepts every instruction unless the phone number is
// listed in reject or fail.
type scriptedGateway struct {
	mu        sync.Mutex
	reject    map[string]string
	fail      map[string]bool
	submitted []PaymentInstruction
}

func (g *scriptedGateway) Submit(ctx context.Context, instruction PaymentInstruction) (PaymentAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, instruction)
	if g.fail[instruction.Phone] {
		return PaymentAck{}, errors.New("gateway timeout")
	}
	if reason, ok := g.reject[instruction.Phone]; ok {
		return PaymentAck{Accepted: false, Reason: reason}, nil
	}
	return PaymentAck{Accepted: true, Reference: "GW-" + instruction.Reference}, nil
}

func (g *scriptedGateway) submissionsFor(entryID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, instruction := range g.submitted {
		if instruction.EntryID == entryID {
			count++
		}
	}
	return count
}

type stubRenderer struct {
	mu    sync.Mutex
	calls []DocumentRequest
	err   error
}

func (r *stubRenderer) Render(ctx context.Context, req DocumentRequest) (Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if r.err != nil {
		return Artifact{}, r.err
	}
	return Artifact{
		FileName:    fmt.Sprintf("%s-%d.pdf", req.Kind, len(req.Entries)),
		ContentType: "application/pdf",
		Data:        []byte("%PDF " + string(req.Kind)),
	}, nil
}

func (r *stubRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type memoryFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (f *memoryFiles) Put(ctx context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = map[string][]byte{}
	}
	f.files[name] = data
	return name, nil
}

func (f *memoryFiles) Get(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

type sentMessage struct {
	kind       string
	employeeID int64
	subject    string
	attachment notifications.Attachment
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) SendTaxCard(ctx context.Context, employee directory.Employee, year int, attachment notifications.Attachment) error {
	return n.record(notifications.KindTaxCard, employee, fmt.Sprint(year), attachment)
}

func (n *recordingNotifier) SendPayslip(ctx context.Context, employee directory.Employee, period string, attachment notifications.Attachment) error {
	return n.record(notifications.KindPayslip, employee, period, attachment)
}

func (n *recordingNotifier) record(kind string, employee directory.Employee, subject string, attachment notifications.Attachment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{kind: kind, employeeID: employee.ID, subject: subject, attachment: attachment})
	return nil
}

// inlineJobs keeps queued jobs until Drain runs them.
type inlineJobs struct {
	mu      sync.Mutex
	pending []func(context.Context) (any, error)
	types   []string
}

func (j *inlineJobs) Enqueue(jobType string, run func(context.Context) (any, error)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.types = append(j.types, jobType)
	j.pending = append(j.pending, run)
}

func (j *inlineJobs) Drain(ctx context.Context) ([]any, error) {
	j.mu.Lock()
	pending := j.pending
	j.pending = nil
	j.mu.Unlock()
	var results []any
	for _, run := range pending {
		result, err := run(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

type fixture struct {
	store     *MemoryStore
	directory *directory.Memory
	engine    *flatEngine
	gateway   *scriptedGateway
	renderer  *stubRenderer
	files     *memoryFiles
	notifier  *recordingNotifier
	jobs      *inlineJobs
	service   *Service
}

func hired() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, employees ...directory.Employee) *fixture {
	t.Helper()
	if len(employees) == 0 {
		employees = []directory.Employee{{
			ID:          1,
			Number:      "EMP-001",
			FirstName:   "John",
			LastName:    "Kamau",
			Email:       "john.kamau@example.co.ke",
			Phone:       "254712345678",
			BasicSalary: dec("100000"),
			Allowances:  decimal.Zero,
			Status:      directory.StatusActive,
			HiredAt:     hired(),
		}}
	}
	f := &fixture{
		store:     NewMemoryStore(),
		directory: directory.NewMemory(employees...),
		engine:    &flatEngine{tax: dec("22000")},
		gateway:   &scriptedGateway{},
		renderer:  &stubRenderer{},
		files:     &memoryFiles{},
		notifier:  &recordingNotifier{},
		jobs:      &inlineJobs{},
	}
	f.service = NewService(Dependencies{
		Store:     f.store,
		Directory: f.directory,
		Engine:    f.engine,
		Gateway:   f.gateway,
		Renderer:  f.renderer,
		Files:     f.files,
		Notifier:  f.notifier,
		Jobs:      f.jobs,
		Currency:  "KES",
	})
	return f
}

func (f *fixture) generate(t *testing.T, month, year int, runType RunType) Run {
	t.Helper()
	result, err := f.service.Runs.Generate(context.Background(), GenerateRequest{Month: month, Year: year, RunType: runType})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Run == nil {
		t.Fatalf("expected a run, got outcome %s", result.Outcome)
	}
	return *result.Run
}

func (f *fixture) entry(t *testing.T, runID, employeeID int64) Entry {
	t.Helper()
	entry, err := f.store.GetEntry(context.Background(), runID, employeeID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	return entry
}

func employee(id int64, first, last, basic, phone string) directory.Employee {
	return directory.Employee{
		ID:          id,
		Number:      fmt.Sprintf("EMP-%03d", id),
		FirstName:   first,
		LastName:    last,
		Email:       fmt.Sprintf("%s@example.co.ke", first),
		Phone:       phone,
		BasicSalary: dec(basic),
		Allowances:  decimal.Zero,
		Status:      directory.StatusActive,
		HiredAt:     hired(),
	}
}
