package switchledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/conciliation/model"
)

var columns = []string{
	"business_key", "cut_off_number", "cut_off_date", "transaction_date", "account_type",
	"account_number", "amount", "movement_code", "amount_sign", "institution_code",
	"service_code", "state", "reversal_movement_code", "counterpart_code",
}

func TestNewReader_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewReader(db, "postgres", "gti; DROP TABLE x")
	assert.ErrorContains(t, err, "invalid switch ledger schema")

	_, err = NewReader(db, "oracle", "gti_transacciones")
	assert.ErrorContains(t, err, "unsupported switch ledger driver")
}

func TestLegsQuery_Placeholders(t *testing.T) {
	pg := legsQuery("postgres", "gti_transacciones")
	assert.Contains(t, pg, "FROM gti_transacciones.transaccion a")
	assert.Contains(t, pg, "a.fecha_confirmacion >= $1 AND a.fecha_confirmacion < $2")
	assert.Contains(t, pg, "b.fecha_confirmacion >= $3 AND b.fecha_confirmacion < $4")
	assert.Contains(t, pg, "UNION")
	assert.Contains(t, pg, "estado <> 'SOLICITADO'")

	my := legsQuery("mysql", "")
	assert.Contains(t, my, "FROM transaccion b")
	assert.NotContains(t, my, "$1")
	assert.Equal(t, 4, strings.Count(my, "?"))
}

func TestReadTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reader, err := NewReader(db, "postgres", "gti_transacciones")
	require.NoError(t, err)

	loc, _ := time.LoadLocation("America/Guayaquil")
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)
	confirmed := time.Date(2024, 3, 1, 10, 0, 0, 0, loc)
	cutOff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(columns).
		AddRow("A-10", "3", cutOff, confirmed, "10", "0011", "100.004", "M1", "D", 7, "QR", "COMPLETADO", nil, 9).
		AddRow("A-10", "3", cutOff, confirmed, "20", "0099", "100.004", "M2", "C", 9, "QR", "FALLIDO", "M2R", 7)

	mock.ExpectQuery(`FROM gti_transacciones\.transaccion a`).
		WithArgs(from, to, from, to).
		WillReturnRows(rows)

	records, err := reader.ReadTransactions(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, records, 2)

	debit := records[0]
	assert.Equal(t, "A-10", debit.BusinessKey)
	assert.Equal(t, "2024-03-01", debit.CutOffDate)
	assert.Equal(t, model.Debit, debit.AmountSign)
	assert.Equal(t, "100", debit.Amount.String())
	assert.Equal(t, model.ExecutionCompleted, debit.ExecutionStatus)
	assert.Equal(t, "", debit.ReversalMovementCode)
	assert.Equal(t, 7, debit.InstitutionCode)
	assert.Equal(t, 9, debit.CounterpartCode)
	assert.Equal(t, model.SideSwitch, debit.Side)

	credit := records[1]
	assert.Equal(t, model.Credit, credit.AmountSign)
	assert.Equal(t, model.ExecutionFailed, credit.ExecutionStatus)
	assert.Equal(t, "M2R", credit.ReversalMovementCode)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTransactions_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reader, err := NewReader(db, "sqlite3", "")
	require.NoError(t, err)

	mock.ExpectQuery(`FROM transaccion a`).WillReturnError(errors.New("no such table"))

	_, err = reader.ReadTransactions(context.Background(), time.Now(), time.Now())
	assert.ErrorContains(t, err, "querying switch ledger: no such table")
}
