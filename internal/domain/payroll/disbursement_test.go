package payroll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func disbursementFixture(t *testing.T) (*fixture, Run) {
	t.Helper()
	f := newFixture(t,
		employee(1, "John", "Kamau", "100000", "254711111111"),
		employee(2, "Sarah", "Wanjiku", "80000", "254722222222"),
		employee(3, "Michael", "Omondi", "60000", "254733333333"),
		employee(4, "Lucy", "Achieng", "50000", ""),
	)
	return f, f.generate(t, 1, 2026, RunTypeRegular)
}

func resultFor(t *testing.T, batch DisbursementBatch, employeeID int64) InstructionResult {
	t.Helper()
	for _, result := range batch.Results {
		if result.EmployeeID == employeeID {
			return result
		}
	}
	t.Fatalf("no result for employee %d", employeeID)
	return InstructionResult{}
}

func TestDisburseRecordsPerEntryOutcome(t *testing.T) {
	f, run := disbursementFixture(t)
	f.gateway.reject = map[string]string{"254722222222": "wallet limit exceeded"}
	f.gateway.fail = map[string]bool{"254733333333": true}

	batch, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if batch.Accepted != 1 || batch.Rejected != 2 || batch.Unconfirmed != 1 || batch.Submitted != 3 {
		t.Fatalf("unexpected counts %+v", batch)
	}
	if !batch.RetryUnsafe() {
		t.Fatalf("expected batch with unconfirmed entry to be retry unsafe")
	}

	john := resultFor(t, batch, 1)
	if john.Status != PaymentStatusPaid || !strings.HasPrefix(john.Reference, "GW-PR") {
		t.Fatalf("unexpected accepted result %+v", john)
	}
	sarah := resultFor(t, batch, 2)
	if sarah.Status != PaymentStatusRejected || sarah.Reason != "wallet limit exceeded" {
		t.Fatalf("unexpected rejected result %+v", sarah)
	}
	michael := resultFor(t, batch, 3)
	if michael.Status != PaymentStatusUnconfirmed || !michael.RetryUnsafe {
		t.Fatalf("unexpected unconfirmed result %+v", michael)
	}
	lucy := resultFor(t, batch, 4)
	if lucy.Status != PaymentStatusRejected || lucy.Reference != "" {
		t.Fatalf("entry without phone should be rejected unsubmitted, got %+v", lucy)
	}

	if entry := f.entry(t, run.ID, 1); !entry.Paid || entry.PaidAt == nil {
		t.Fatalf("accepted entry not marked paid: %+v", entry)
	}
	if entry := f.entry(t, run.ID, 3); entry.Paid || entry.PaymentStatus != PaymentStatusUnconfirmed {
		t.Fatalf("unconfirmed entry has wrong state: %+v", entry)
	}
	if len(f.store.Batches()) != 1 {
		t.Fatalf("expected batch to be saved")
	}
}

func TestDisburseTwiceNeverResubmitsPaidOrUnconfirmed(t *testing.T) {
	f, run := disbursementFixture(t)
	f.gateway.reject = map[string]string{"254722222222": "wallet limit exceeded"}
	f.gateway.fail = map[string]bool{"254733333333": true}

	first, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("first disburse: %v", err)
	}
	johnEntry := resultFor(t, first, 1).EntryID
	michaelEntry := resultFor(t, first, 3).EntryID
	sarahEntry := resultFor(t, first, 2).EntryID

	f.gateway.reject = nil
	second, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("second disburse: %v", err)
	}
	if len(second.Results) != 2 {
		t.Fatalf("expected only the two rejected entries to be retried, got %+v", second.Results)
	}
	if f.gateway.submissionsFor(johnEntry) != 1 {
		t.Fatalf("paid entry submitted again")
	}
	if f.gateway.submissionsFor(michaelEntry) != 1 {
		t.Fatalf("unconfirmed entry submitted again")
	}
	if f.gateway.submissionsFor(sarahEntry) != 2 {
		t.Fatalf("rejected entry should be retried once")
	}
	var references []string
	for _, instruction := range f.gateway.submitted {
		if instruction.EntryID == sarahEntry {
			references = append(references, instruction.Reference)
		}
	}
	if references[0] == references[1] {
		t.Fatalf("retry reused payment reference %s", references[0])
	}
}

func TestDisburseFullyPaidRunHasNothingToDo(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)
	if _, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	_, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID)
	if !errors.Is(err, ErrNothingToDisburse) {
		t.Fatalf("expected ErrNothingToDisburse, got %v", err)
	}
	if len(f.gateway.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(f.gateway.submitted))
	}
}

func TestDisburseWithoutGateway(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)
	disbursements := NewDisbursements(f.store, nil)

	_, err := disbursements.DisburseMobileMoney(context.Background(), run.ID)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || !errors.Is(err, ErrGatewayNotConfigured) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if entry := f.entry(t, run.ID, 1); entry.PaymentStatus != PaymentStatusUnpaid {
		t.Fatalf("entry claimed without gateway: %s", entry.PaymentStatus)
	}
}

func TestDisburseCancelledBeforeSubmitReleasesEntries(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := f.service.Disbursements.DisburseMobileMoney(ctx, run.ID)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if batch.Skipped != 1 || batch.Submitted != 0 {
		t.Fatalf("expected entry skipped, got %+v", batch)
	}
	if len(f.gateway.submitted) != 0 {
		t.Fatalf("cancelled request reached the gateway")
	}
	if entry := f.entry(t, run.ID, 1); entry.PaymentStatus != PaymentStatusUnpaid {
		t.Fatalf("expected entry released to unpaid, got %s", entry.PaymentStatus)
	}
}

func TestMarkManuallyPaidSettlesEverything(t *testing.T) {
	f, run := disbursementFixture(t)
	f.gateway.fail = map[string]bool{"254733333333": true}
	if _, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID); err != nil {
		t.Fatalf("disburse: %v", err)
	}

	changed, err := f.service.Disbursements.MarkManuallyPaid(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 entries changed, got %d", changed)
	}
	summary, _ := f.service.Summaries.Recompute(context.Background(), run.ID)
	if summary.UnpaidEntries != 0 || summary.PaidEntries != 4 {
		t.Fatalf("expected all entries paid, got %+v", summary)
	}

	again, err := f.service.Disbursements.MarkManuallyPaid(context.Background(), run.ID)
	if err != nil || again != 0 {
		t.Fatalf("second mark paid should change nothing, got %d %v", again, err)
	}
}

func TestMarkManuallyPaidUnknownRun(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Disbursements.MarkManuallyPaid(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// gatedGateway holds each submission until release is closed, then rejects it.
type gatedGateway struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedGateway) Submit(ctx context.Context, instruction PaymentInstruction) (PaymentAck, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.entered <- struct{}{}
	<-g.release
	return PaymentAck{Accepted: false, Reason: "wallet limit exceeded"}, nil
}

func TestManualSettlementLeavesInFlightEntryToGateway(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)
	gateway := &gatedGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
	disbursements := NewDisbursements(f.store, gateway)

	done := make(chan DisbursementBatch, 1)
	go func() {
		batch, err := disbursements.DisburseMobileMoney(context.Background(), run.ID)
		if err != nil {
			t.Errorf("disburse: %v", err)
		}
		done <- batch
	}()
	<-gateway.entered

	changed, err := disbursements.MarkManuallyPaid(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if changed != 0 {
		t.Fatalf("in-flight entry was marked paid, changed=%d", changed)
	}

	close(gateway.release)
	batch := <-done
	if batch.Rejected != 1 {
		t.Fatalf("expected gateway rejection recorded, got %+v", batch)
	}
	entry := f.entry(t, run.ID, 1)
	if entry.Paid || entry.PaymentStatus != PaymentStatusRejected {
		t.Fatalf("expected rejected unpaid entry, got %+v", entry)
	}

	// Manual settlement after the outcome pays the entry once, and no
	// further gateway submission is possible.
	changed, err = disbursements.MarkManuallyPaid(context.Background(), run.ID)
	if err != nil || changed != 1 {
		t.Fatalf("expected one entry settled, got %d %v", changed, err)
	}
	if _, err := disbursements.DisburseMobileMoney(context.Background(), run.ID); !errors.Is(err, ErrNothingToDisburse) {
		t.Fatalf("expected ErrNothingToDisburse, got %v", err)
	}
	if gateway.calls != 1 {
		t.Fatalf("expected one gateway call, got %d", gateway.calls)
	}
}

func TestSettlementRequiresSubmittingEntry(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)
	ctx := context.Background()
	entry := f.entry(t, run.ID, 1)

	if _, err := f.store.MarkRunPaid(ctx, run.ID, "bank transfer", time.Now()); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	err := f.store.SettlePayment(ctx, PaymentOutcome{EntryID: entry.ID, Status: PaymentStatusRejected, Note: "late rejection", At: time.Now()})
	if !errors.Is(err, ErrNotSubmitting) {
		t.Fatalf("expected ErrNotSubmitting, got %v", err)
	}
	if after := f.entry(t, run.ID, 1); !after.Paid || after.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("late outcome overwrote a settled entry: %+v", after)
	}

	err = f.store.SettlePayment(ctx, PaymentOutcome{EntryID: 9999, Status: PaymentStatusPaid, At: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentDisbursementsSubmitEachEntryOnce(t *testing.T) {
	f, run := disbursementFixture(t)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), run.ID)
			switch {
			case err == nil:
				mu.Lock()
				batches++
				mu.Unlock()
			case errors.Is(err, ErrNothingToDisburse):
			default:
				t.Errorf("disburse: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if batches == 0 {
		t.Fatalf("no caller disbursed")
	}
	entries, _ := f.store.ListEntries(context.Background(), run.ID)
	for _, entry := range entries {
		if n := f.gateway.submissionsFor(entry.ID); n > 1 {
			t.Fatalf("entry %d submitted %d times", entry.ID, n)
		}
	}
	// Lucy has no phone, so a later caller may retry her rejected entry
	// without reaching the gateway.
	if len(f.gateway.submitted) != 3 {
		t.Fatalf("expected 3 gateway submissions, got %d", len(f.gateway.submitted))
	}
}

// unrecordedBatches fails every batch write.
type unrecordedBatches struct {
	*MemoryStore
}

func (unrecordedBatches) SaveBatch(ctx context.Context, batch DisbursementBatch) error {
	return errors.New("disk full")
}

func TestUnrecordedBatchIsReported(t *testing.T) {
	f := newFixture(t)
	run := f.generate(t, 1, 2026, RunTypeRegular)

	batch, err := NewDisbursements(unrecordedBatches{f.store}, f.gateway).DisburseMobileMoney(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if batch.BatchRecorded {
		t.Fatalf("expected batchRecorded=false when the batch write fails")
	}
	if batch.Accepted != 1 || !f.entry(t, run.ID, 1).Paid {
		t.Fatalf("payment outcome lost with the batch record: %+v", batch)
	}

	recorded, err := f.service.Disbursements.DisburseMobileMoney(context.Background(), f.generate(t, 2, 2026, RunTypeRegular).ID)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if !recorded.BatchRecorded {
		t.Fatalf("expected batchRecorded=true")
	}
}
