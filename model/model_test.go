package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validRecord() TransactionRecord {
	return TransactionRecord{
		BusinessKey:     "A-10",
		MovementCode:    "M1",
		CutOffDate:      "2024-03-01",
		TransactionDate: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		AccountType:     "SAV",
		AccountNumber:   "0011223344",
		Amount:          decimal.RequireFromString("100.00"),
		AmountSign:      Credit,
		ExecutionStatus: ExecutionCompleted,
	}
}

func TestTransactionRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *TransactionRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(r *TransactionRecord) {}},
		{name: "missing business key", mutate: func(r *TransactionRecord) { r.BusinessKey = "" }, wantErr: "business key is required"},
		{name: "missing movement code", mutate: func(r *TransactionRecord) { r.MovementCode = "" }, wantErr: "movement code is required for A-10"},
		{name: "bad sign", mutate: func(r *TransactionRecord) { r.AmountSign = "X" }, wantErr: `invalid amount sign "X" for A-10`},
		{name: "negative amount", mutate: func(r *TransactionRecord) { r.Amount = decimal.RequireFromString("-1") }, wantErr: "negative amount -1.00 for A-10"},
		{name: "bad status", mutate: func(r *TransactionRecord) { r.ExecutionStatus = 3 }, wantErr: "invalid execution status 3 for A-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestSnapshotOf(t *testing.T) {
	r := validRecord()
	s := SnapshotOf(r)

	assert.False(t, s.IsEmpty())
	assert.Equal(t, r.TransactionDate, *s.TransactionDate)
	assert.True(t, r.Amount.Equal(s.Amount))
	assert.Equal(t, r.AccountNumber, s.AccountNumber)
	assert.True(t, TransactionSnapshot{}.IsEmpty())
}

func TestTimelineEntries(t *testing.T) {
	entry := NotRunEntry(7, "2024-03-02")
	assert.Equal(t, NotRun, entry.StatusConciliation)
	assert.Nil(t, entry.ConciliationDate)
	assert.True(t, entry.NetAmount.IsZero())

	runAt := time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC)
	header := Conciliation{InstitutionCode: 7, CutOffDate: "2024-03-02", ConciliationDate: runAt, Pending: 0, StatusConciliation: FullyReconciled}
	projected := TimelineEntryOf(header.Summary())
	assert.Equal(t, runAt, *projected.ConciliationDate)
	assert.Equal(t, FullyReconciled, projected.StatusConciliation)
	assert.Equal(t, "fully_reconciled", projected.StatusConciliation.String())
}

func TestMatchKey(t *testing.T) {
	r := validRecord()
	assert.Equal(t, MatchKey{BusinessKey: "A-10", MovementCode: "M1"}, r.Key())
	assert.Equal(t, "A-10/M1", r.Key().String())
}

func TestParseLocalTimestamp(t *testing.T) {
	loc, err := time.LoadLocation("America/Guayaquil")
	assert.NoError(t, err)

	got, err := ParseLocalTimestamp("2024-03-01 10:15:30.250", loc)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 15, 30, 250000000, time.UTC), got.UTC())

	got, err = ParseLocalTimestamp("2024-03-01T10:15:30Z", loc)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC), got.UTC())

	_, err = ParseLocalTimestamp("yesterday", loc)
	assert.Error(t, err)
}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/Guayaquil")
	assert.NoError(t, err)

	start, end, err := DayBounds("2024-03-01", loc)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = DayBounds("01/03/2024", loc)
	assert.EqualError(t, err, `date "01/03/2024" must be formatted as YYYY-MM-DD`)
}
