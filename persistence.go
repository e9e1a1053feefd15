/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package conciliation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

// UpsertByKey writes header under its (institution, cut-off date) key. An existing
// row keeps its id and is overwritten only if its version is unchanged since it was
// read; otherwise a new row is inserted.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - header *model.Conciliation: The header to store. ID, Version and CreatedAt are set on return.
//
// Returns:
// - int64: The storage id of the header.
// - error: Conflict if another writer got there first, PersistenceFailure on store errors.
func (c *Conciliation) UpsertByKey(ctx context.Context, header *model.Conciliation) (int64, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Upsert conciliation")
	defer span.End()

	existing, err := c.datasource.FindConciliationByKey(ctx, header.InstitutionCode, header.CutOffDate)
	switch {
	case err == nil:
		header.ID = existing.ID
		header.Version = existing.Version
		header.CreatedAt = existing.CreatedAt
		span.SetAttributes(attribute.Bool("replaced", true))
		if err := c.datasource.ReplaceConciliation(ctx, header); err != nil {
			return 0, err
		}
		return header.ID, nil
	case apierror.Is(err, apierror.ErrNotFound):
		return c.datasource.InsertConciliation(ctx, header)
	default:
		return 0, err
	}
}

// Save recomputes the header from its details, encrypts the account fields of every
// detail and upserts the header. Posted counts, totals and status are never trusted.
// The header passed in keeps its plaintext details; its ID and Version are updated.
func (c *Conciliation) Save(ctx context.Context, header *model.Conciliation) (int64, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Save conciliation")
	defer span.End()

	if header == nil {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "conciliation header is required", nil)
	}
	if err := validateRunInput(header.InstitutionCode, header.CutOffDate); err != nil {
		return 0, err
	}
	Recalculate(header, c.clock.Now())

	sealed, err := c.sealHeader(header)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt conciliation details", err)
	}

	id, err := c.UpsertByKey(ctx, sealed)
	if err != nil {
		if _, ok := apierror.CodeOf(err); !ok {
			err = apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to save conciliation", err)
		}
		return 0, err
	}

	header.ID = id
	header.Version = sealed.Version
	header.CreatedAt = sealed.CreatedAt
	logrus.WithFields(logrus.Fields{
		"id":           id,
		"institution":  header.InstitutionCode,
		"cut_off_date": header.CutOffDate,
		"version":      header.Version,
	}).Info("conciliation saved")
	return id, nil
}

func (c *Conciliation) sealHeader(header *model.Conciliation) (*model.Conciliation, error) {
	sealed := *header
	sealed.Details = make([]model.ConciliationDetail, len(header.Details))
	for i, d := range header.Details {
		var err error
		if d.Switch, err = c.sealSnapshot(d.Switch); err != nil {
			return nil, fmt.Errorf("detail %d switch side: %w", d.ID, err)
		}
		if d.Institution, err = c.sealSnapshot(d.Institution); err != nil {
			return nil, fmt.Errorf("detail %d institution side: %w", d.ID, err)
		}
		sealed.Details[i] = d
	}
	return &sealed, nil
}

func validateEdits(edits []model.DetailEdit) error {
	if len(edits) == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "at least one detail edit is required", nil)
	}
	for _, e := range edits {
		if e.Reconciled != 0 && e.Reconciled != 1 {
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("reconciled must be 0 or 1 for detail %d", e.ID), nil)
		}
	}
	return nil
}

// UpdateDetailAndRecalculate applies manual edits to detail lines and recomputes the
// header. Either every edit is stored along with the new totals or nothing is.
func (c *Conciliation) UpdateDetailAndRecalculate(ctx context.Context, institutionCode int, cutOffDate string, edits []model.DetailEdit) (model.HeaderSummary, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Update conciliation details")
	defer span.End()
	span.SetAttributes(attribute.Int("edits", len(edits)))

	if err := validateRunInput(institutionCode, cutOffDate); err != nil {
		return model.HeaderSummary{}, err
	}
	if err := validateEdits(edits); err != nil {
		return model.HeaderSummary{}, err
	}

	header, err := c.datasource.FindConciliationByKey(ctx, institutionCode, cutOffDate)
	if err != nil {
		return model.HeaderSummary{}, err
	}

	positions := make(map[int]int, len(header.Details))
	for i, d := range header.Details {
		positions[d.ID] = i
	}
	for _, e := range edits {
		if _, ok := positions[e.ID]; !ok {
			return model.HeaderSummary{}, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("detail %d does not exist in conciliation of institution %d on %s", e.ID, institutionCode, cutOffDate), nil)
		}
	}

	now := c.clock.Now()
	for _, e := range edits {
		d := &header.Details[positions[e.ID]]
		d.Reconciled = e.Reconciled
		d.Description = e.Description
		d.EditedAt = now
	}
	Recalculate(header, now)

	if err := c.datasource.ReplaceConciliation(ctx, header); err != nil {
		return model.HeaderSummary{}, err
	}
	return header.Summary(), nil
}
