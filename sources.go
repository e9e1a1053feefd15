package conciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

func (c *Conciliation) fetchSwitchTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching switch side")
	defer span.End()

	records, err := c.datasource.GetSwitchTransactions(ctx, institutionCode, from, to)
	if err != nil {
		return nil, err
	}
	return c.openRecords(records)
}

func (c *Conciliation) fetchInstitutionTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Conciliation").Start(ctx, "Fetching institution side")
	defer span.End()

	records, err := c.datasource.GetInstitutionTransactions(ctx, institutionCode, from, to)
	if err != nil {
		return nil, err
	}
	return c.openRecords(records)
}

// openRecords decrypts the account fields of stored records in place. A record that
// cannot be decrypted is an internal error, not an upstream one: retrying will not fix a key.
func (c *Conciliation) openRecords(records []model.TransactionRecord) ([]model.TransactionRecord, error) {
	for i := range records {
		number, err := c.cipher.Decrypt(records[i].AccountNumber)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt stored transactions",
				fmt.Errorf("decrypting account number of %s: %w", records[i].Key(), err))
		}
		accountType, err := c.cipher.Decrypt(records[i].AccountType)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrypt stored transactions",
				fmt.Errorf("decrypting account type of %s: %w", records[i].Key(), err))
		}
		records[i].AccountNumber = number
		records[i].AccountType = accountType
	}
	return records, nil
}

// sealRecords returns a copy of records with encrypted account fields.
func (c *Conciliation) sealRecords(records []model.TransactionRecord) ([]model.TransactionRecord, error) {
	sealed := make([]model.TransactionRecord, len(records))
	for i, rec := range records {
		number, err := c.cipher.Encrypt(rec.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("encrypting account number of %s: %w", rec.Key(), err)
		}
		accountType, err := c.cipher.Encrypt(rec.AccountType)
		if err != nil {
			return nil, fmt.Errorf("encrypting account type of %s: %w", rec.Key(), err)
		}
		rec.AccountNumber = number
		rec.AccountType = accountType
		sealed[i] = rec
	}
	return sealed, nil
}

// sortRecords orders a side by business key then transaction date, keeping
// the store's order for ties.
func sortRecords(records []model.TransactionRecord) {
	sort.SliceStable(records, func(a, b int) bool {
		if records[a].BusinessKey != records[b].BusinessKey {
			return records[a].BusinessKey < records[b].BusinessKey
		}
		return records[a].TransactionDate.Before(records[b].TransactionDate)
	})
}

func (c *Conciliation) sealSnapshot(s model.TransactionSnapshot) (model.TransactionSnapshot, error) {
	var err error
	if s.AccountNumber, err = c.cipher.Encrypt(s.AccountNumber); err != nil {
		return s, err
	}
	if s.AccountType, err = c.cipher.Encrypt(s.AccountType); err != nil {
		return s, err
	}
	return s, nil
}

func (c *Conciliation) openSnapshot(s model.TransactionSnapshot) (model.TransactionSnapshot, error) {
	var err error
	if s.AccountNumber, err = c.cipher.Decrypt(s.AccountNumber); err != nil {
		return s, err
	}
	if s.AccountType, err = c.cipher.Decrypt(s.AccountType); err != nil {
		return s, err
	}
	return s, nil
}
