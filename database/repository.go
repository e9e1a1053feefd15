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

package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/conciliation/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	switchTransaction      // Interface for switch-side transaction operations
	institutionTransaction // Interface for institution-side transaction operations
	conciliation           // Interface for conciliation header operations
	institution            // Interface for institution lookups
}

// switchTransaction covers the imported copy of the core switch ledger.
type switchTransaction interface {
	GetSwitchTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) // Retrieves switch legs of an institution confirmed inside [from, to)
	ReplaceSwitchWindow(ctx context.Context, from, to time.Time, records []model.TransactionRecord) (int, error)           // Replaces every switch leg inside [from, to)
}

// institutionTransaction covers the imported copy of institution ledgers.
type institutionTransaction interface {
	GetInstitutionTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error)            // Retrieves institution records inside [from, to)
	ReplaceInstitutionWindow(ctx context.Context, institutionCode int, from, to time.Time, records []model.TransactionRecord) (int, error) // Replaces an institution's records inside [from, to)
}

// conciliation covers persisted headers and their detail lines.
type conciliation interface {
	FindConciliationByKey(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, error)            // Retrieves a header with details by natural key
	InsertConciliation(ctx context.Context, header *model.Conciliation) (int64, error)                                         // Inserts a new header
	ReplaceConciliation(ctx context.Context, header *model.Conciliation) error                                                 // Overwrites a header when its version still matches
	ListConciliationsInRange(ctx context.Context, institutionCode int, fromDate, toDate string) ([]model.HeaderSummary, error) // Retrieves header summaries for a date range
}

// institution covers the institutions known to the system.
type institution interface {
	FindInstitutionByCode(ctx context.Context, code int) (*model.Institution, error) // Retrieves an institution by code
	GetAllInstitutions(ctx context.Context) ([]model.Institution, error)             // Retrieves every institution
}
