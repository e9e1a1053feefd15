package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Institution is a financial institution whose ledger is reconciled against the switch.
// Domain is the base URL of its transaction service; empty when it exposes none.
type Institution struct {
	Code        int       `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Domain      string    `json:"domain"`
	CreatedAt   time.Time `json:"created_at"`
}

// TimelineEntry is one day of the status timeline.
type TimelineEntry struct {
	InstitutionCode     int                `json:"institution_code"`
	CutOffDate          string             `json:"cut_off_date"`
	ConciliationDate    *time.Time         `json:"conciliation_date"`
	TransactionCount    int                `json:"transaction_count"`
	TransactionError    int                `json:"transaction_error"`
	TransactionOk       int                `json:"transaction_ok"`
	Pending             int                `json:"pending"`
	Reconciled          int                `json:"reconciled"`
	DebitTotalConciled  decimal.Decimal    `json:"debit_total_conciled"`
	CreditTotalConciled decimal.Decimal    `json:"credit_total_conciled"`
	NetAmountConciled   decimal.Decimal    `json:"net_amount_conciled"`
	DebitTotal          decimal.Decimal    `json:"debit_total"`
	CreditTotal         decimal.Decimal    `json:"credit_total"`
	NetAmount           decimal.Decimal    `json:"net_amount"`
	StatusConciliation  StatusConciliation `json:"status_conciliation"`
}

// NotRunEntry is the placeholder for a day that has no stored header.
func NotRunEntry(institutionCode int, cutOffDate string) TimelineEntry {
	return TimelineEntry{
		InstitutionCode:     institutionCode,
		CutOffDate:          cutOffDate,
		DebitTotalConciled:  decimal.Zero,
		CreditTotalConciled: decimal.Zero,
		NetAmountConciled:   decimal.Zero,
		DebitTotal:          decimal.Zero,
		CreditTotal:         decimal.Zero,
		NetAmount:           decimal.Zero,
		StatusConciliation:  NotRun,
	}
}

// TimelineEntryOf projects a stored header onto the timeline.
func TimelineEntryOf(h HeaderSummary) TimelineEntry {
	runAt := h.ConciliationDate
	return TimelineEntry{
		InstitutionCode:     h.InstitutionCode,
		CutOffDate:          h.CutOffDate,
		ConciliationDate:    &runAt,
		TransactionCount:    h.TransactionCount,
		TransactionError:    h.TransactionError,
		TransactionOk:       h.TransactionOk,
		Pending:             h.Pending,
		Reconciled:          h.Reconciled,
		DebitTotalConciled:  h.DebitTotalConciled,
		CreditTotalConciled: h.CreditTotalConciled,
		NetAmountConciled:   h.NetAmountConciled,
		DebitTotal:          h.DebitTotal,
		CreditTotal:         h.CreditTotal,
		NetAmount:           h.NetAmount,
		StatusConciliation:  h.StatusConciliation,
	}
}
