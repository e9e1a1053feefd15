package model

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wacul/ptr"
)

// MatchStatus is the outcome recorded on a detail line.
type MatchStatus int

const (
	Mismatch MatchStatus = 0
	Match    MatchStatus = 1
)

// StatusConciliation summarises a header.
type StatusConciliation int

const (
	NotRun          StatusConciliation = 0
	PendingWithGaps StatusConciliation = 1
	FullyReconciled StatusConciliation = 2
)

func (s StatusConciliation) String() string {
	switch s {
	case PendingWithGaps:
		return "pending_with_gaps"
	case FullyReconciled:
		return "fully_reconciled"
	default:
		return "not_run"
	}
}

// TransactionSnapshot holds the values one side reported for a detail line.
// It is zero valued when that side had no counterpart.
type TransactionSnapshot struct {
	TransactionDate      *time.Time      `json:"transaction_date,omitempty"`
	AccountType          string          `json:"account_type"`
	AccountNumber        string          `json:"account_number"`
	Amount               decimal.Decimal `json:"amount"`
	AmountSign           AmountSign      `json:"amount_sign"`
	MovementCode         string          `json:"movement_code"`
	InstitutionCode      int             `json:"institution_code"`
	ServiceCode          string          `json:"service_code"`
	ExecutionStatus      int             `json:"execution_status"`
	ReversalMovementCode string          `json:"reversal_movement_code"`
}

// SnapshotOf copies the comparable fields of a record.
func SnapshotOf(t TransactionRecord) TransactionSnapshot {
	return TransactionSnapshot{
		TransactionDate:      ptr.Time(t.TransactionDate),
		AccountType:          t.AccountType,
		AccountNumber:        t.AccountNumber,
		Amount:               t.Amount,
		AmountSign:           t.AmountSign,
		MovementCode:         t.MovementCode,
		InstitutionCode:      t.InstitutionCode,
		ServiceCode:          t.ServiceCode,
		ExecutionStatus:      t.ExecutionStatus,
		ReversalMovementCode: t.ReversalMovementCode,
	}
}

// IsEmpty reports whether the side was absent for the line.
func (s TransactionSnapshot) IsEmpty() bool {
	return s.TransactionDate == nil && s.MovementCode == "" && s.AccountNumber == ""
}

// ConciliationDetail is one line of a reconciliation result.
type ConciliationDetail struct {
	ID           int                 `json:"id"`
	State        MatchStatus         `json:"state"`
	Observation  string              `json:"observation"`
	Reconciled   int                 `json:"reconciled"`
	Description  string              `json:"description"`
	BusinessKey  string              `json:"business_key"`
	CutOffNumber string              `json:"cut_off_number"`
	CutOffDate   string              `json:"cut_off_date"`
	Switch       TransactionSnapshot `json:"switch"`
	Institution  TransactionSnapshot `json:"institution"`
	EditedAt     time.Time           `json:"edited_at"`
}

// Conciliation is the header persisted once per institution and cut-off date.
type Conciliation struct {
	ID                  int64                `json:"id"`
	InstitutionCode     int                  `json:"institution_code"`
	CutOffDate          string               `json:"cut_off_date"`
	ConciliationDate    time.Time            `json:"conciliation_date"`
	TransactionCount    int                  `json:"transaction_count"`
	TransactionError    int                  `json:"transaction_error"`
	TransactionOk       int                  `json:"transaction_ok"`
	Pending             int                  `json:"pending"`
	Reconciled          int                  `json:"reconciled"`
	DebitTotalConciled  decimal.Decimal      `json:"debit_total_conciled"`
	CreditTotalConciled decimal.Decimal      `json:"credit_total_conciled"`
	NetAmountConciled   decimal.Decimal      `json:"net_amount_conciled"`
	DebitTotal          decimal.Decimal      `json:"debit_total"`
	CreditTotal         decimal.Decimal      `json:"credit_total"`
	NetAmount           decimal.Decimal      `json:"net_amount"`
	StatusConciliation  StatusConciliation   `json:"status_conciliation"`
	CreatedAt           time.Time            `json:"created_at"`
	EditedAt            time.Time            `json:"edited_at"`
	Version             int                  `json:"version"`
	Details             []ConciliationDetail `json:"details,omitempty"`
}

// HeaderSummary is a header without its detail lines.
type HeaderSummary struct {
	ID                  int64              `json:"id"`
	InstitutionCode     int                `json:"institution_code"`
	CutOffDate          string             `json:"cut_off_date"`
	ConciliationDate    time.Time          `json:"conciliation_date"`
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
	EditedAt            time.Time          `json:"edited_at"`
	Version             int                `json:"version"`
}

// Summary drops the detail lines.
func (c *Conciliation) Summary() HeaderSummary {
	return HeaderSummary{
		ID:                  c.ID,
		InstitutionCode:     c.InstitutionCode,
		CutOffDate:          c.CutOffDate,
		ConciliationDate:    c.ConciliationDate,
		TransactionCount:    c.TransactionCount,
		TransactionError:    c.TransactionError,
		TransactionOk:       c.TransactionOk,
		Pending:             c.Pending,
		Reconciled:          c.Reconciled,
		DebitTotalConciled:  c.DebitTotalConciled,
		CreditTotalConciled: c.CreditTotalConciled,
		NetAmountConciled:   c.NetAmountConciled,
		DebitTotal:          c.DebitTotal,
		CreditTotal:         c.CreditTotal,
		NetAmount:           c.NetAmount,
		StatusConciliation:  c.StatusConciliation,
		EditedAt:            c.EditedAt,
		Version:             c.Version,
	}
}

// DetailEdit is a manual change to one detail line.
type DetailEdit struct {
	ID          int    `json:"id"`
	Reconciled  int    `json:"reconciled"`
	Description string `json:"description"`
}
