package conciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	redlock "github.com/jerry-enebeli/conciliation/internal/lock"
	"github.com/jerry-enebeli/conciliation/internal/notification"
	"github.com/jerry-enebeli/conciliation/model"
)

func validateRunInput(institutionCode int, cutOffDate string) error {
	if institutionCode <= 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "institution code must be a positive number", nil)
	}
	if cutOffDate == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "cut-off date is required", nil)
	}
	return nil
}

// withTimeout bounds ctx by d; a zero d leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Run reconciles one institution for one cut-off day without persisting anything.
// Both sides are read concurrently and must arrive before matching starts.
func (c *Conciliation) Run(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Run conciliation")
	defer span.End()
	span.SetAttributes(attribute.Int("institution_code", institutionCode), attribute.String("cut_off_date", cutOffDate))

	if err := validateRunInput(institutionCode, cutOffDate); err != nil {
		return nil, err
	}
	from, to, err := model.DayBounds(cutOffDate, c.loc)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	fetchCtx, cancel := withTimeout(ctx, c.fetchTimeout)
	defer cancel()

	var switchSide, institutionSide []model.TransactionRecord
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		records, err := c.fetchSwitchTransactions(gctx, institutionCode, from, to)
		switchSide = records
		return err
	})
	g.Go(func() error {
		records, err := c.fetchInstitutionTransactions(gctx, institutionCode, from, to)
		institutionSide = records
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		if apierror.Is(err, apierror.ErrInternalServer) {
			return nil, err
		}
		msg := fmt.Sprintf("Failed to read transactions for institution %d on %s", institutionCode, cutOffDate)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("Timed out reading transactions for institution %d on %s", institutionCode, cutOffDate)
		}
		return nil, apierror.NewAPIError(apierror.ErrUpstreamFailure, msg, err)
	}

	sortRecords(switchSide)
	sortRecords(institutionSide)

	details, err := c.matcher.Match(switchSide, institutionSide, cutOffDate)
	if err != nil {
		return nil, err
	}

	header := Aggregate(institutionCode, cutOffDate, c.clock.Now(), details)
	logrus.WithFields(logrus.Fields{
		"institution":  institutionCode,
		"cut_off_date": cutOffDate,
		"count":        header.TransactionCount,
		"pending":      header.Pending,
		"status":       header.StatusConciliation.String(),
	}).Info("conciliation run complete")
	return header, nil
}

// RunAndSave runs and persists a conciliation while holding the run lock for
// the institution and date. When saving fails the computed header is still
// returned together with the error so callers can retry the save alone.
func (c *Conciliation) RunAndSave(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, int64, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Run and save conciliation")
	defer span.End()

	if err := validateRunInput(institutionCode, cutOffDate); err != nil {
		return nil, 0, err
	}

	locker := redlock.NewRunLocker(c.redis, institutionCode, cutOffDate)
	if err := locker.WaitLock(ctx, c.lockTTL, c.lockWait); err != nil {
		if errors.Is(err, redlock.ErrLockNotAcquired) {
			return nil, 0, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("A conciliation for institution %d on %s is already running", institutionCode, cutOffDate), nil)
		}
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire run lock", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("key", locker.Key()).Warn("failed to release run lock")
		}
	}()

	header, err := c.Run(ctx, institutionCode, cutOffDate)
	if err != nil {
		return nil, 0, err
	}

	id, err := c.Save(ctx, header)
	if err != nil {
		notification.NotifyError(err)
		return header, 0, err
	}
	return header, id, nil
}
