package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

const (
	switchTable      = "conciliation.transaction_switch"
	institutionTable = "conciliation.transaction_institution"
)

const recordColumns = `id, business_key, movement_code, cut_off_number, TO_CHAR(cut_off_date, 'YYYY-MM-DD'),
	transaction_date, account_type, account_number, amount, amount_sign, institution_code,
	service_code, execution_status, reversal_movement_code, counterpart_code`

// GetSwitchTransactions returns the switch legs of an institution confirmed inside
// [from, to), ordered by business key and transaction date.
func (d Datasource) GetSwitchTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching switch transactions")
	defer span.End()
	return d.getRecords(ctx, switchTable, model.SideSwitch, institutionCode, from, to)
}

// GetInstitutionTransactions returns the records an institution reported inside
// [from, to), ordered by business key and transaction date.
func (d Datasource) GetInstitutionTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching institution transactions")
	defer span.End()
	return d.getRecords(ctx, institutionTable, model.SideInstitution, institutionCode, from, to)
}

func (d Datasource) getRecords(ctx context.Context, table string, side model.Side, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM `+table+`
		WHERE institution_code = $1 AND transaction_date >= $2 AND transaction_date < $3
		ORDER BY business_key, transaction_date
	`, institutionCode, from, to)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", table)
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		var (
			rec                      model.TransactionRecord
			cutOffNumber, cutOffDate sql.NullString
			reversal, serviceCode    sql.NullString
			counterpart              sql.NullInt64
		)
		err := rows.Scan(
			&rec.ID, &rec.BusinessKey, &rec.MovementCode, &cutOffNumber, &cutOffDate,
			&rec.TransactionDate, &rec.AccountType, &rec.AccountNumber, &rec.Amount, &rec.AmountSign, &rec.InstitutionCode,
			&serviceCode, &rec.ExecutionStatus, &reversal, &counterpart,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", table)
		}
		rec.CutOffNumber = cutOffNumber.String
		rec.CutOffDate = cutOffDate.String
		rec.ServiceCode = serviceCode.String
		rec.ReversalMovementCode = reversal.String
		rec.CounterpartCode = int(counterpart.Int64)
		rec.Side = side
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s", table)
	}
	return records, nil
}

// ReplaceSwitchWindow deletes every switch leg confirmed inside [from, to) and
// inserts records in their place, atomically.
func (d Datasource) ReplaceSwitchWindow(ctx context.Context, from, to time.Time, records []model.TransactionRecord) (int, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Replacing switch transactions window")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	return d.replaceWindow(ctx, switchTable,
		`DELETE FROM `+switchTable+` WHERE transaction_date >= $1 AND transaction_date < $2`,
		[]interface{}{from, to}, records)
}

// ReplaceInstitutionWindow deletes the institution's records inside [from, to) and
// inserts records in their place, atomically.
func (d Datasource) ReplaceInstitutionWindow(ctx context.Context, institutionCode int, from, to time.Time, records []model.TransactionRecord) (int, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Replacing institution transactions window")
	defer span.End()
	span.SetAttributes(attribute.Int("institution_code", institutionCode), attribute.Int("records", len(records)))

	return d.replaceWindow(ctx, institutionTable,
		`DELETE FROM `+institutionTable+` WHERE institution_code = $1 AND transaction_date >= $2 AND transaction_date < $3`,
		[]interface{}{institutionCode, from, to}, records)
}

func (d Datasource) replaceWindow(ctx context.Context, table, deleteQuery string, deleteArgs []interface{}, records []model.TransactionRecord) (int, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, fmt.Sprintf("Failed to clear %s", table), errors.Wrap(err, "deleting window"))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+table+` (
			business_key, movement_code, cut_off_number, cut_off_date, transaction_date,
			account_type, account_number, amount, amount_sign, institution_code,
			service_code, execution_status, reversal_movement_code, counterpart_code
		) VALUES ($1, $2, $3, NULLIF($4, '')::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to prepare insert", errors.Wrap(err, "preparing insert"))
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.BusinessKey, r.MovementCode, r.CutOffNumber, r.CutOffDate, r.TransactionDate,
			r.AccountType, r.AccountNumber, r.Amount, r.AmountSign, r.InstitutionCode,
			r.ServiceCode, r.ExecutionStatus, r.ReversalMovementCode, r.CounterpartCode,
		)
		if err != nil {
			return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, fmt.Sprintf("Failed to insert %s into %s", r.Key(), table), errors.Wrap(err, "inserting record"))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to commit transaction", err)
	}
	return len(records), nil
}
