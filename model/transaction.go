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

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AmountSign tells whether a movement debits or credits the account.
type AmountSign string

const (
	Debit  AmountSign = "D"
	Credit AmountSign = "C"
)

// Side identifies which ledger a transaction record was read from.
type Side string

const (
	SideSwitch      Side = "switch"
	SideInstitution Side = "institution"
)

const (
	ExecutionFailed    = 0
	ExecutionCompleted = 1
)

// TransactionRecord is one movement as reported by either the switch or the institution.
type TransactionRecord struct {
	ID                   int64           `json:"id,omitempty"`
	BusinessKey          string          `json:"business_key"`
	MovementCode         string          `json:"movement_code"`
	CutOffNumber         string          `json:"cut_off_number"`
	CutOffDate           string          `json:"cut_off_date"`
	TransactionDate      time.Time       `json:"transaction_date"`
	AccountType          string          `json:"account_type"`
	AccountNumber        string          `json:"account_number"`
	Amount               decimal.Decimal `json:"amount"`
	AmountSign           AmountSign      `json:"amount_sign"`
	InstitutionCode      int             `json:"institution_code"`
	ServiceCode          string          `json:"service_code"`
	ExecutionStatus      int             `json:"execution_status"`
	ReversalMovementCode string          `json:"reversal_movement_code"`
	CounterpartCode      int             `json:"counterpart_code,omitempty"`
	Side                 Side            `json:"side,omitempty"`
}

// Key returns the composite identity used to pair records across sides.
func (t TransactionRecord) Key() MatchKey {
	return MatchKey{BusinessKey: t.BusinessKey, MovementCode: t.MovementCode}
}

// Validate reports the first structural problem found on the record.
func (t TransactionRecord) Validate() error {
	switch {
	case t.BusinessKey == "":
		return fmt.Errorf("business key is required")
	case t.MovementCode == "":
		return fmt.Errorf("movement code is required for %s", t.BusinessKey)
	case t.AmountSign != Debit && t.AmountSign != Credit:
		return fmt.Errorf("invalid amount sign %q for %s", t.AmountSign, t.BusinessKey)
	case t.Amount.IsNegative():
		return fmt.Errorf("negative amount %s for %s", t.Amount.StringFixed(2), t.BusinessKey)
	case t.ExecutionStatus != ExecutionFailed && t.ExecutionStatus != ExecutionCompleted:
		return fmt.Errorf("invalid execution status %d for %s", t.ExecutionStatus, t.BusinessKey)
	}
	return nil
}

// MatchKey pairs a business key with a movement code.
type MatchKey struct {
	BusinessKey  string
	MovementCode string
}

func (k MatchKey) String() string {
	return k.BusinessKey + "/" + k.MovementCode
}
