package conciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/internal/upstream"
	"github.com/jerry-enebeli/conciliation/model"
)

// window converts an inclusive [fromDate, toDate] range of calendar days into
// the half-open instant range [from, to).
func (c *Conciliation) window(fromDate, toDate string) (time.Time, time.Time, error) {
	from, _, err := model.DayBounds(fromDate, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	_, to, err := model.DayBounds(toDate, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("start date %s is after end date %s", fromDate, toDate), nil)
	}
	return from, to, nil
}

// SyncSwitchTransactions imports the switch legs confirmed between fromDate and
// toDate from the core switch database, replacing what was imported before for
// those days.
func (c *Conciliation) SyncSwitchTransactions(ctx context.Context, fromDate, toDate string) (int, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Sync switch transactions")
	defer span.End()

	if c.ledger == nil {
		return 0, apierror.NewAPIError(apierror.ErrBadRequest, "switch ledger is not configured", nil)
	}
	from, to, err := c.window(fromDate, toDate)
	if err != nil {
		return 0, err
	}

	readCtx, cancel := withTimeout(ctx, c.fetchTimeout)
	defer cancel()
	records, err := c.ledger.ReadTransactions(readCtx, from, to)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUpstreamFailure, "Failed to read the switch ledger", err)
	}

	sealed, err := c.sealRecords(records)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt switch transactions", err)
	}
	n, err := c.datasource.ReplaceSwitchWindow(ctx, from, to, sealed)
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{"from": fromDate, "to": toDate, "count": n}).Info("switch transactions synced")
	return n, nil
}

// SyncInstitutionTransactions imports an institution's own records for the range
// from its transaction service. Institutions without a service are skipped.
// An empty services list falls back to the configured default.
func (c *Conciliation) SyncInstitutionTransactions(ctx context.Context, institutionCode int, fromDate, toDate string, services []string) (int, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Sync institution transactions")
	defer span.End()

	from, to, err := c.window(fromDate, toDate)
	if err != nil {
		return 0, err
	}
	inst, err := c.institution(ctx, institutionCode)
	if err != nil {
		return 0, err
	}
	if inst.Domain == "" {
		logrus.WithField("institution", institutionCode).Info("no transaction service configured, skipping sync")
		return 0, nil
	}
	if len(services) == 0 {
		services = c.serviceList
	}

	fetchCtx, cancel := withTimeout(ctx, c.fetchTimeout)
	defer cancel()
	records, err := c.fetcher.FetchTransactions(fetchCtx, upstream.Query{
		InstitutionCode: institutionCode,
		Domain:          inst.Domain,
		StartDate:       fromDate,
		EndDate:         toDate,
		ServiceList:     services,
	})
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUpstreamFailure, fmt.Sprintf("Institution %d transaction service failed", institutionCode), err)
	}
	for i := range records {
		if records[i].InstitutionCode == 0 {
			records[i].InstitutionCode = institutionCode
		}
	}

	sealed, err := c.sealRecords(records)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encrypt institution transactions", err)
	}
	n, err := c.datasource.ReplaceInstitutionWindow(ctx, institutionCode, from, to, sealed)
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{"institution": institutionCode, "from": fromDate, "to": toDate, "count": n}).Info("institution transactions synced")
	return n, nil
}

// ProcessCompletely refreshes the institution side for the cut-off day and then
// runs and saves the conciliation.
func (c *Conciliation) ProcessCompletely(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, int64, error) {
	if _, err := c.SyncInstitutionTransactions(ctx, institutionCode, cutOffDate, cutOffDate, nil); err != nil {
		return nil, 0, err
	}
	return c.RunAndSave(ctx, institutionCode, cutOffDate)
}
