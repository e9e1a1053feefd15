package conciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

const (
	// AllStates disables the status or state filter.
	AllStates = -1
	// NotFullyReconciled selects NotRun and PendingWithGaps days in ListByStatus.
	NotFullyReconciled = 0
)

func institutionCacheKey(code int) string {
	return fmt.Sprintf("institution:%d", code)
}

// institution loads an institution, going through the cache first.
func (c *Conciliation) institution(ctx context.Context, code int) (*model.Institution, error) {
	key := institutionCacheKey(code)
	if c.cache != nil {
		var cached model.Institution
		found, err := c.cache.Get(ctx, key, &cached)
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("institution cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	inst, err := c.datasource.FindInstitutionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, inst, c.institutionTTL); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("institution cache write failed")
		}
	}
	return inst, nil
}

// Institutions lists every institution known to the service.
func (c *Conciliation) Institutions(ctx context.Context) ([]model.Institution, error) {
	return c.datasource.GetAllInstitutions(ctx)
}

func keepEntry(status model.StatusConciliation, filter int) bool {
	switch filter {
	case AllStates:
		return true
	case NotFullyReconciled:
		return status < model.FullyReconciled
	default:
		return int(status) == filter
	}
}

// ListByStatus returns one timeline entry per day from fromDate to today in the
// business calendar, newest first. Days without a stored header appear as NotRun
// with zero totals.
//
// statusFilter is AllStates, NotFullyReconciled, or an exact StatusConciliation.
func (c *Conciliation) ListByStatus(ctx context.Context, institutionCode int, fromDate string, statusFilter int) ([]model.TimelineEntry, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "List conciliations by status")
	defer span.End()

	if statusFilter < AllStates || statusFilter > int(model.FullyReconciled) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown status filter %d", statusFilter), nil)
	}
	from, err := model.ParseDate(fromDate, c.loc)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if _, err := c.institution(ctx, institutionCode); err != nil {
		return nil, err
	}

	now := c.clock.Now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	if from.After(today) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("from date %s is in the future", fromDate), nil)
	}

	summaries, err := c.datasource.ListConciliationsInRange(ctx, institutionCode, fromDate, today.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	stored := make(map[string]model.HeaderSummary, len(summaries))
	for _, s := range summaries {
		stored[s.CutOffDate] = s
	}

	var entries []model.TimelineEntry
	for day := today; !day.Before(from); day = day.AddDate(0, 0, -1) {
		date := day.Format(model.DateLayout)
		entry := model.NotRunEntry(institutionCode, date)
		if s, ok := stored[date]; ok {
			entry = model.TimelineEntryOf(s)
		}
		if keepEntry(entry.StatusConciliation, statusFilter) {
			entries = append(entries, entry)
		}
	}
	if entries == nil {
		entries = []model.TimelineEntry{}
	}
	return entries, nil
}

// GetDetail returns the detail lines of a stored conciliation with account fields
// decrypted. stateFilter is AllStates or a MatchStatus.
func (c *Conciliation) GetDetail(ctx context.Context, institutionCode int, cutOffDate string, stateFilter int) ([]model.ConciliationDetail, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Get conciliation detail")
	defer span.End()

	if stateFilter != AllStates && stateFilter != int(model.Mismatch) && stateFilter != int(model.Match) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown state filter %d", stateFilter), nil)
	}
	if _, err := model.ParseDate(cutOffDate, c.loc); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	header, err := c.datasource.FindConciliationByKey(ctx, institutionCode, cutOffDate)
	if err != nil {
		return nil, err
	}

	details := make([]model.ConciliationDetail, 0, len(header.Details))
	for _, d := range header.Details {
		if stateFilter != AllStates && int(d.State) != stateFilter {
			continue
		}
		if d.Switch, err = c.openSnapshot(d.Switch); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt conciliation detail", err)
		}
		if d.Institution, err = c.openSnapshot(d.Institution); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt conciliation detail", err)
		}
		details = append(details, d)
	}
	return details, nil
}
