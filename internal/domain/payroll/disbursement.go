package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const manualSettlementNote = "settled outside the gateway"

// Disbursements submits a run's unpaid entries to the mobile-money gateway
// and records a per-entry outcome. Submission is fire-and-forget: an
// accepted instruction marks the entry paid.
type Disbursements struct {
	store   StoreAPI
	gateway Gateway
	now     func() time.Time
}

func NewDisbursements(store StoreAPI, gateway Gateway) *Disbursements {
	return &Disbursements{store: store, gateway: gateway, now: time.Now}
}

// DisburseMobileMoney submits one instruction per unpaid or rejected entry.
// Entries are claimed atomically first, so a concurrent or repeated call
// never submits an entry twice. Entries whose outcome is unknown are
// reported as unconfirmed with RetryUnsafe set and are not eligible again.
func (d *Disbursements) DisburseMobileMoney(ctx context.Context, runID int64) (DisbursementBatch, error) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return DisbursementBatch{}, err
	}
	if d.gateway == nil {
		return DisbursementBatch{}, &GatewayError{RunID: runID, Err: ErrGatewayNotConfigured}
	}

	claimed, err := d.store.ClaimForDisbursement(ctx, runID)
	if err != nil {
		return DisbursementBatch{}, &GatewayError{RunID: runID, Err: err}
	}
	if len(claimed) == 0 {
		return DisbursementBatch{}, ErrNothingToDisburse
	}

	// Claimed entries must always be settled, even if the caller goes away.
	settleCtx := context.WithoutCancel(ctx)
	batch := DisbursementBatch{
		ID:        uuid.NewString(),
		RunID:     runID,
		CreatedAt: d.now().UTC(),
		Results:   make([]InstructionResult, 0, len(claimed)),
	}
	for _, entry := range claimed {
		result := d.submit(ctx, settleCtx, run, entry)
		switch result.Status {
		case PaymentStatusPaid:
			batch.Accepted++
			batch.Submitted++
		case PaymentStatusRejected:
			batch.Rejected++
			if result.Reference != "" {
				batch.Submitted++
			}
		case PaymentStatusUnconfirmed:
			batch.Unconfirmed++
			batch.Submitted++
		default:
			batch.Skipped++
		}
		batch.Results = append(batch.Results, result)
	}

	if err := d.store.SaveBatch(settleCtx, batch); err != nil {
		slog.Warn("disbursement batch save failed", "runId", runID, "batchId", batch.ID, "err", err)
	} else {
		batch.BatchRecorded = true
	}
	return batch, nil
}

func (d *Disbursements) submit(ctx, settleCtx context.Context, run Run, entry Entry) InstructionResult {
	result := InstructionResult{EntryID: entry.ID, EmployeeID: entry.EmployeeID}
	outcome := PaymentOutcome{EntryID: entry.ID}

	switch {
	case ctx.Err() != nil:
		outcome.Status = PaymentStatusUnpaid
		outcome.Note = "not submitted: request cancelled"
	case strings.TrimSpace(entry.Phone) == "":
		outcome.Status = PaymentStatusRejected
		outcome.Note = "no mobile money number on file"
	default:
		instruction := PaymentInstruction{
			Reference:    fmt.Sprintf("PR%d-%d-%s", run.ID, entry.ID, uuid.NewString()[:8]),
			RunID:        run.ID,
			EntryID:      entry.ID,
			EmployeeID:   entry.EmployeeID,
			EmployeeName: entry.EmployeeName,
			Phone:        entry.Phone,
			Amount:       entry.Net,
			Remarks:      "Salary " + run.Period().String(),
		}
		result.Reference = instruction.Reference
		outcome.Reference = instruction.Reference

		ack, err := d.gateway.Submit(ctx, instruction)
		switch {
		case err != nil:
			outcome.Status = PaymentStatusUnconfirmed
			outcome.Note = err.Error()
			result.RetryUnsafe = true
		case ack.Accepted:
			outcome.Status = PaymentStatusPaid
			if ack.Reference != "" {
				outcome.Reference = ack.Reference
				result.Reference = ack.Reference
			}
		default:
			outcome.Status = PaymentStatusRejected
			outcome.Note = ack.Reason
		}
	}

	outcome.At = d.now().UTC()
	result.Status = outcome.Status
	result.Reason = outcome.Note
	if err := d.store.SettlePayment(settleCtx, outcome); err != nil {
		slog.Warn("payment status update failed", "runId", run.ID, "entryId", entry.ID, "status", outcome.Status, "err", err)
		result.RetryUnsafe = true
		if result.Reason != "" {
			result.Reason += "; "
		}
		if errors.Is(err, ErrNotSubmitting) {
			result.Reason += "entry was settled elsewhere while the instruction was in flight"
		} else {
			result.Reason += "status not recorded, entry left submitting"
		}
	}
	return result
}

// MarkManuallyPaid marks every entry of the run paid without a gateway
// call and returns how many entries changed. Entries with an instruction in
// flight are left for the gateway outcome to settle.
func (d *Disbursements) MarkManuallyPaid(ctx context.Context, runID int64) (int, error) {
	if _, err := d.store.GetRun(ctx, runID); err != nil {
		return 0, err
	}
	return d.store.MarkRunPaid(ctx, runID, manualSettlementNote, d.now().UTC())
}
