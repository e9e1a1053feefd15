package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

const uniqueViolation = "23505"

const headerColumns = `id, institution_code, TO_CHAR(cut_off_date, 'YYYY-MM-DD'), conciliation_date,
	transaction_count, transaction_error, transaction_ok, pending, reconciled,
	debit_total_conciled, credit_total_conciled, net_amount_conciled,
	debit_total, credit_total, net_amount, status_conciliation, edited_at, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row rowScanner, extra ...interface{}) (model.HeaderSummary, error) {
	var h model.HeaderSummary
	dest := []interface{}{
		&h.ID, &h.InstitutionCode, &h.CutOffDate, &h.ConciliationDate,
		&h.TransactionCount, &h.TransactionError, &h.TransactionOk, &h.Pending, &h.Reconciled,
		&h.DebitTotalConciled, &h.CreditTotalConciled, &h.NetAmountConciled,
		&h.DebitTotal, &h.CreditTotal, &h.NetAmount, &h.StatusConciliation, &h.EditedAt, &h.Version,
	}
	err := row.Scan(append(dest, extra...)...)
	return h, err
}

func marshalDetails(details []model.ConciliationDetail) ([]byte, error) {
	if details == nil {
		details = []model.ConciliationDetail{}
	}
	return json.Marshal(details)
}

// FindConciliationByKey loads the header stored for an institution and cut-off date.
func (d Datasource) FindConciliationByKey(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching conciliation by key")
	defer span.End()
	span.SetAttributes(attribute.Int("institution_code", institutionCode), attribute.String("cut_off_date", cutOffDate))

	var (
		createdAt   sql.NullTime
		detailsJSON []byte
	)
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+headerColumns+`, created_at, details
		FROM conciliation.conciliations
		WHERE institution_code = $1 AND cut_off_date = $2
	`, institutionCode, cutOffDate)

	summary, err := scanSummary(row, &createdAt, &detailsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No conciliation for institution %d on %s", institutionCode, cutOffDate), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to retrieve conciliation", errors.Wrap(err, "scanning conciliation"))
	}

	header := headerFromSummary(summary)
	header.CreatedAt = createdAt.Time
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &header.Details); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode conciliation details", errors.Wrap(err, "decoding details"))
		}
	}
	return header, nil
}

// InsertConciliation stores a header that has no row yet. A concurrent insert for
// the same institution and date fails with a conflict.
func (d Datasource) InsertConciliation(ctx context.Context, header *model.Conciliation) (int64, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Saving conciliation to db")
	defer span.End()

	detailsJSON, err := marshalDetails(header.Details)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode conciliation details", err)
	}

	var id int64
	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO conciliation.conciliations (
			institution_code, cut_off_date, conciliation_date,
			transaction_count, transaction_error, transaction_ok, pending, reconciled,
			debit_total_conciled, credit_total_conciled, net_amount_conciled,
			debit_total, credit_total, net_amount, status_conciliation,
			details, created_at, edited_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1)
		RETURNING id
	`,
		header.InstitutionCode, header.CutOffDate, header.ConciliationDate,
		header.TransactionCount, header.TransactionError, header.TransactionOk, header.Pending, header.Reconciled,
		header.DebitTotalConciled, header.CreditTotalConciled, header.NetAmountConciled,
		header.DebitTotal, header.CreditTotal, header.NetAmount, header.StatusConciliation,
		detailsJSON, header.CreatedAt, header.EditedAt,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Conciliation for institution %d on %s already exists", header.InstitutionCode, header.CutOffDate), err)
		}
		return 0, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to save conciliation", errors.Wrap(err, "inserting conciliation"))
	}

	header.ID = id
	header.Version = 1
	return id, nil
}

// ReplaceConciliation overwrites the row identified by header.ID provided its
// version still equals header.Version. On success header.Version is advanced.
func (d Datasource) ReplaceConciliation(ctx context.Context, header *model.Conciliation) error {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Replacing conciliation in db")
	defer span.End()
	span.SetAttributes(attribute.Int64("conciliation_id", header.ID), attribute.Int("version", header.Version))

	detailsJSON, err := marshalDetails(header.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode conciliation details", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE conciliation.conciliations
		SET conciliation_date = $3,
			transaction_count = $4, transaction_error = $5, transaction_ok = $6, pending = $7, reconciled = $8,
			debit_total_conciled = $9, credit_total_conciled = $10, net_amount_conciled = $11,
			debit_total = $12, credit_total = $13, net_amount = $14, status_conciliation = $15,
			details = $16, edited_at = $17, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		header.ID, header.Version, header.ConciliationDate,
		header.TransactionCount, header.TransactionError, header.TransactionOk, header.Pending, header.Reconciled,
		header.DebitTotalConciled, header.CreditTotalConciled, header.NetAmountConciled,
		header.DebitTotal, header.CreditTotal, header.NetAmount, header.StatusConciliation,
		detailsJSON, header.EditedAt,
	)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to update conciliation", errors.Wrap(err, "updating conciliation"))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to update conciliation", errors.Wrap(err, "reading affected rows"))
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Conciliation %d was modified concurrently", header.ID), nil)
	}

	header.Version++
	return nil
}

// ListConciliationsInRange returns the header summaries stored for cut-off dates
// inside [fromDate, toDate], newest first.
func (d Datasource) ListConciliationsInRange(ctx context.Context, institutionCode int, fromDate, toDate string) ([]model.HeaderSummary, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Listing conciliations in range")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+headerColumns+`
		FROM conciliation.conciliations
		WHERE institution_code = $1 AND cut_off_date BETWEEN $2 AND $3
		ORDER BY cut_off_date DESC
	`, institutionCode, fromDate, toDate)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to list conciliations", errors.Wrap(err, "querying conciliations"))
	}
	defer rows.Close()

	var summaries []model.HeaderSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to scan conciliation", errors.Wrap(err, "scanning conciliation"))
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Error occurred while iterating over conciliations", err)
	}
	return summaries, nil
}

func headerFromSummary(s model.HeaderSummary) *model.Conciliation {
	return &model.Conciliation{
		ID:                  s.ID,
		InstitutionCode:     s.InstitutionCode,
		CutOffDate:          s.CutOffDate,
		ConciliationDate:    s.ConciliationDate,
		TransactionCount:    s.TransactionCount,
		TransactionError:    s.TransactionError,
		TransactionOk:       s.TransactionOk,
		Pending:             s.Pending,
		Reconciled:          s.Reconciled,
		DebitTotalConciled:  s.DebitTotalConciled,
		CreditTotalConciled: s.CreditTotalConciled,
		NetAmountConciled:   s.NetAmountConciled,
		DebitTotal:          s.DebitTotal,
		CreditTotal:         s.CreditTotal,
		NetAmount:           s.NetAmount,
		StatusConciliation:  s.StatusConciliation,
		EditedAt:            s.EditedAt,
		Version:             s.Version,
	}
}
