package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

func (d Datasource) FindInstitutionByCode(ctx context.Context, code int) (*model.Institution, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching institution by code")
	defer span.End()

	inst := &model.Institution{}
	var description, domain sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT code, name, description, domain, created_at
		FROM conciliation.institutions
		WHERE code = $1
	`, code).Scan(&inst.Code, &inst.Name, &description, &domain, &inst.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Institution with code %d not found", code), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve institution", errors.Wrap(err, "scanning institution"))
	}
	inst.Description = description.String
	inst.Domain = domain.String
	return inst, nil
}

func (d Datasource) GetAllInstitutions(ctx context.Context) ([]model.Institution, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching all institutions")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT code, name, description, domain, created_at
		FROM conciliation.institutions
		ORDER BY code
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve institutions", err)
	}
	defer rows.Close()

	var institutions []model.Institution
	for rows.Next() {
		var (
			inst                model.Institution
			description, domain sql.NullString
		)
		if err := rows.Scan(&inst.Code, &inst.Name, &description, &domain, &inst.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan institution", err)
		}
		inst.Description = description.String
		inst.Domain = domain.String
		institutions = append(institutions, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over institutions", err)
	}
	return institutions, nil
}
