package conciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	redlock "github.com/jerry-enebeli/conciliation/internal/lock"
	"github.com/jerry-enebeli/conciliation/model"
)

// keyRotator moves a sealed value onto the cipher's active key.
type keyRotator interface {
	Rotate(token string) (string, error)
}

// RotationReport counts what RotateKeys re-sealed.
type RotationReport struct {
	Institutions  int `json:"institutions"`
	Transactions  int `json:"transactions"`
	Conciliations int `json:"conciliations"`
}

// RotateKeys re-seals the stored institution transactions and conciliation details
// between fromDate and toDate under the active encryption key. A zero institutionCode
// covers every known institution. The switch copy is not touched here; syncing it
// again writes it under the active key.
func (c *Conciliation) RotateKeys(ctx context.Context, institutionCode int, fromDate, toDate string) (RotationReport, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Rotate encryption keys")
	defer span.End()

	var report RotationReport
	rotator, ok := c.cipher.(keyRotator)
	if !ok {
		return report, apierror.NewAPIError(apierror.ErrBadRequest, "the configured cipher cannot rotate keys", nil)
	}
	from, to, err := c.window(fromDate, toDate)
	if err != nil {
		return report, err
	}

	codes := []int{institutionCode}
	if institutionCode == 0 {
		institutions, err := c.datasource.GetAllInstitutions(ctx)
		if err != nil {
			return report, err
		}
		codes = codes[:0]
		for _, inst := range institutions {
			codes = append(codes, inst.Code)
		}
	}

	for _, code := range codes {
		records, err := c.datasource.GetInstitutionTransactions(ctx, code, from, to)
		if err != nil {
			return report, apierror.NewAPIError(apierror.ErrPersistenceFailure, fmt.Sprintf("Failed to read transactions of institution %d", code), err)
		}
		if len(records) > 0 {
			if err := rotateRecords(rotator, records); err != nil {
				return report, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to re-encrypt institution transactions", err)
			}
			n, err := c.datasource.ReplaceInstitutionWindow(ctx, code, from, to, records)
			if err != nil {
				return report, err
			}
			report.Transactions += n
		}

		summaries, err := c.datasource.ListConciliationsInRange(ctx, code, fromDate, toDate)
		if err != nil {
			return report, err
		}
		for _, s := range summaries {
			if err := c.rotateConciliation(ctx, rotator, code, s.CutOffDate); err != nil {
				return report, err
			}
			report.Conciliations++
		}
		report.Institutions++
	}

	span.SetAttributes(attribute.Int("transactions", report.Transactions), attribute.Int("conciliations", report.Conciliations))
	logrus.WithFields(logrus.Fields{
		"from":          fromDate,
		"to":            toDate,
		"institutions":  report.Institutions,
		"transactions":  report.Transactions,
		"conciliations": report.Conciliations,
	}).Info("encryption keys rotated")
	return report, nil
}

// rotateConciliation re-seals one stored header under the run lock so a concurrent
// run cannot interleave with the rewrite.
func (c *Conciliation) rotateConciliation(ctx context.Context, rotator keyRotator, institutionCode int, cutOffDate string) error {
	locker := redlock.NewRunLocker(c.redis, institutionCode, cutOffDate)
	if err := locker.WaitLock(ctx, c.lockTTL, c.lockWait); err != nil {
		if errors.Is(err, redlock.ErrLockNotAcquired) {
			return apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("A conciliation for institution %d on %s is already running", institutionCode, cutOffDate), nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire run lock", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("key", locker.Key()).Warn("failed to release run lock")
		}
	}()

	header, err := c.datasource.FindConciliationByKey(ctx, institutionCode, cutOffDate)
	if err != nil {
		return err
	}
	for i := range header.Details {
		d := &header.Details[i]
		if err := rotateSnapshot(rotator, &d.Switch); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to re-encrypt detail %d", d.ID), err)
		}
		if err := rotateSnapshot(rotator, &d.Institution); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to re-encrypt detail %d", d.ID), err)
		}
	}
	return c.datasource.ReplaceConciliation(ctx, header)
}

func rotateRecords(rotator keyRotator, records []model.TransactionRecord) error {
	for i := range records {
		var err error
		if records[i].AccountNumber, err = rotator.Rotate(records[i].AccountNumber); err != nil {
			return fmt.Errorf("account number of %s: %w", records[i].Key(), err)
		}
		if records[i].AccountType, err = rotator.Rotate(records[i].AccountType); err != nil {
			return fmt.Errorf("account type of %s: %w", records[i].Key(), err)
		}
	}
	return nil
}

func rotateSnapshot(rotator keyRotator, s *model.TransactionSnapshot) error {
	var err error
	if s.AccountNumber, err = rotator.Rotate(s.AccountNumber); err != nil {
		return err
	}
	s.AccountType, err = rotator.Rotate(s.AccountType)
	return err
}
