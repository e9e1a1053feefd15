package conciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/conciliation/model"
)

// totals accumulates the money columns of a header.
type totals struct {
	debit, credit                 decimal.Decimal
	debitConciled, creditConciled decimal.Decimal
}

func (t *totals) add(d model.ConciliationDetail) {
	inst := d.Institution
	if inst.ExecutionStatus != model.ExecutionCompleted {
		return
	}
	switch inst.AmountSign {
	case model.Debit:
		t.debit = t.debit.Add(inst.Amount)
		if d.Reconciled == 1 {
			t.debitConciled = t.debitConciled.Add(inst.Amount)
		}
	case model.Credit:
		t.credit = t.credit.Add(inst.Amount)
		if d.Reconciled == 1 {
			t.creditConciled = t.creditConciled.Add(inst.Amount)
		}
	}
}

var halfCent = decimal.New(5, -3)

// roundHalfUp rounds to cents with ties going towards positive infinity, so -0.005 becomes 0.00.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(halfCent).RoundFloor(2)
}

// Aggregate builds the header for a freshly matched set of details.
func Aggregate(institutionCode int, cutOffDate string, runAt time.Time, details []model.ConciliationDetail) *model.Conciliation {
	header := &model.Conciliation{
		InstitutionCode:  institutionCode,
		CutOffDate:       cutOffDate,
		ConciliationDate: runAt,
		CreatedAt:        runAt,
		Details:          details,
	}
	Recalculate(header, runAt)
	return header
}

// Recalculate recomputes counts, totals and status from header.Details.
// Only details whose institution side executed count towards money totals,
// valued with the institution's amount and sign.
func Recalculate(header *model.Conciliation, editedAt time.Time) {
	var ok, failed, pending, reconciled int
	sum := totals{debit: decimal.Zero, credit: decimal.Zero, debitConciled: decimal.Zero, creditConciled: decimal.Zero}

	for _, d := range header.Details {
		if d.State == model.Match {
			ok++
		} else {
			failed++
		}
		if d.Reconciled == 1 {
			reconciled++
		} else {
			pending++
		}
		sum.add(d)
	}

	header.TransactionCount = len(header.Details)
	header.TransactionOk = ok
	header.TransactionError = failed
	header.Pending = pending
	header.Reconciled = reconciled

	header.DebitTotal = roundHalfUp(sum.debit)
	header.CreditTotal = roundHalfUp(sum.credit)
	header.NetAmount = roundHalfUp(sum.credit.Sub(sum.debit))
	header.DebitTotalConciled = roundHalfUp(sum.debitConciled)
	header.CreditTotalConciled = roundHalfUp(sum.creditConciled)
	header.NetAmountConciled = roundHalfUp(sum.creditConciled.Sub(sum.debitConciled))

	header.StatusConciliation = model.PendingWithGaps
	if pending == 0 {
		header.StatusConciliation = model.FullyReconciled
	}
	header.EditedAt = editedAt
}
