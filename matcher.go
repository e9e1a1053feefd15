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
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

const (
	observationOK                 = "OK"
	observationMissingInstitution = "transaction does not exist on the institution side"
	observationMissingSwitch      = "no match, record does not exist on the switch side"
)

// DuplicateKeyPolicy decides how a side that repeats a MatchKey is handled. KeepFirst
// keeps every record and pairs lookups with the first one seen, KeepLast keeps only
// the last occurrence and Reject fails the run.
type DuplicateKeyPolicy string

const (
	KeepFirst DuplicateKeyPolicy = "keep_first"
	KeepLast  DuplicateKeyPolicy = "keep_last"
	Reject    DuplicateKeyPolicy = "reject"
)

// ParseDuplicateKeyPolicy maps a configuration value to a policy. Empty means KeepFirst.
func ParseDuplicateKeyPolicy(value string) (DuplicateKeyPolicy, error) {
	switch DuplicateKeyPolicy(value) {
	case "", KeepFirst:
		return KeepFirst, nil
	case KeepLast:
		return KeepLast, nil
	case Reject:
		return Reject, nil
	}
	return "", fmt.Errorf("unknown duplicate key policy %q", value)
}

// fieldCheck compares one attribute of a pair. Order of fieldChecks is the order
// differences are reported in.
type fieldCheck struct {
	label string
	equal func(s, i model.TransactionRecord) bool
}

var fieldChecks = []fieldCheck{
	{"Account", func(s, i model.TransactionRecord) bool { return s.AccountNumber == i.AccountNumber }},
	{"Account Type", func(s, i model.TransactionRecord) bool { return s.AccountType == i.AccountType }},
	{"Amount", func(s, i model.TransactionRecord) bool { return s.Amount.Equal(i.Amount) }},
	{"Transaction Type", func(s, i model.TransactionRecord) bool { return s.AmountSign == i.AmountSign }},
	{"Movement Code", func(s, i model.TransactionRecord) bool { return s.MovementCode == i.MovementCode }},
	{"Reversal Movement", func(s, i model.TransactionRecord) bool { return s.ReversalMovementCode == i.ReversalMovementCode }},
	{"Transaction Status", func(s, i model.TransactionRecord) bool { return s.ExecutionStatus == i.ExecutionStatus }},
}

// Matcher pairs the two sides of a cut-off day by MatchKey.
type Matcher struct {
	policy DuplicateKeyPolicy
	clock  Clock
}

func NewMatcher(policy DuplicateKeyPolicy, clock Clock) *Matcher {
	if policy == "" {
		policy = KeepFirst
	}
	return &Matcher{policy: policy, clock: clock}
}

type indexEntry struct {
	record  model.TransactionRecord
	dropped bool
}

// sideIndex keeps the records of a side in arrival order and the record a key resolves to.
type sideIndex struct {
	entries []indexEntry
	byKey   map[model.MatchKey]int
}

func (m *Matcher) index(side model.Side, records []model.TransactionRecord) (*sideIndex, error) {
	idx := &sideIndex{
		entries: make([]indexEntry, 0, len(records)),
		byKey:   make(map[model.MatchKey]int, len(records)),
	}
	var duplicates []string

	for _, rec := range records {
		key := rec.Key()
		pos, seen := idx.byKey[key]
		if !seen {
			idx.byKey[key] = len(idx.entries)
			idx.entries = append(idx.entries, indexEntry{record: rec})
			continue
		}

		duplicates = append(duplicates, key.String())
		switch m.policy {
		case KeepLast:
			idx.entries[pos].dropped = true
			idx.byKey[key] = len(idx.entries)
			idx.entries = append(idx.entries, indexEntry{record: rec})
		case KeepFirst:
			idx.entries = append(idx.entries, indexEntry{record: rec})
		}
	}

	if len(duplicates) == 0 {
		return idx, nil
	}
	if m.policy == Reject {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("duplicate keys on the %s side: %s", side, strings.Join(duplicates, ", ")), nil)
	}
	logrus.WithFields(logrus.Fields{
		"side":       side,
		"policy":     m.policy,
		"duplicates": len(duplicates),
	}).Warn("duplicate match keys found")
	return idx, nil
}

func (idx *sideIndex) lookup(key model.MatchKey) (model.TransactionRecord, bool) {
	pos, ok := idx.byKey[key]
	if !ok {
		return model.TransactionRecord{}, false
	}
	return idx.entries[pos].record, true
}

func validateSide(records []model.TransactionRecord, side model.Side) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("%s side: %s", side, err.Error()), nil)
		}
	}
	return nil
}

// compare lists the labels of the fields that differ between a pair.
func compare(s, i model.TransactionRecord) (model.MatchStatus, string) {
	var diffs []string
	for _, check := range fieldChecks {
		if !check.equal(s, i) {
			diffs = append(diffs, fmt.Sprintf("Difference in %s.", check.label))
		}
	}
	if len(diffs) == 0 {
		return model.Match, observationOK
	}
	return model.Mismatch, strings.Join(diffs, " ")
}

// Match classifies every record of both sides. Switch records are emitted first in
// input order, then institution records with no switch counterpart. Detail ids run
// from 1 without gaps.
func (m *Matcher) Match(switchSide, institutionSide []model.TransactionRecord, cutOffDate string) ([]model.ConciliationDetail, error) {
	if err := validateSide(switchSide, model.SideSwitch); err != nil {
		return nil, err
	}
	if err := validateSide(institutionSide, model.SideInstitution); err != nil {
		return nil, err
	}

	switchIdx, err := m.index(model.SideSwitch, switchSide)
	if err != nil {
		return nil, err
	}
	institutionIdx, err := m.index(model.SideInstitution, institutionSide)
	if err != nil {
		return nil, err
	}

	runAt := m.clock.Now()
	details := make([]model.ConciliationDetail, 0, len(switchIdx.entries)+len(institutionIdx.entries))
	next := func() int { return len(details) + 1 }

	for _, entry := range switchIdx.entries {
		if entry.dropped {
			continue
		}
		s := entry.record
		detail := model.ConciliationDetail{
			ID:           next(),
			BusinessKey:  s.BusinessKey,
			CutOffNumber: s.CutOffNumber,
			CutOffDate:   firstNonEmpty(s.CutOffDate, cutOffDate),
			Switch:       model.SnapshotOf(s),
			EditedAt:     runAt,
		}
		if i, ok := institutionIdx.lookup(s.Key()); ok {
			detail.State, detail.Observation = compare(s, i)
			detail.Institution = model.SnapshotOf(i)
			detail.CutOffNumber = firstNonEmpty(s.CutOffNumber, i.CutOffNumber)
			detail.CutOffDate = firstNonEmpty(s.CutOffDate, i.CutOffDate, cutOffDate)
		} else {
			detail.State, detail.Observation = model.Mismatch, observationMissingInstitution
		}
		if detail.State == model.Match {
			detail.Reconciled = 1
		}
		details = append(details, detail)
	}

	for _, entry := range institutionIdx.entries {
		if entry.dropped {
			continue
		}
		i := entry.record
		if _, ok := switchIdx.lookup(i.Key()); ok {
			continue
		}
		details = append(details, model.ConciliationDetail{
			ID:           next(),
			State:        model.Mismatch,
			Observation:  observationMissingSwitch,
			BusinessKey:  i.BusinessKey,
			CutOffNumber: i.CutOffNumber,
			CutOffDate:   firstNonEmpty(i.CutOffDate, cutOffDate),
			Institution:  model.SnapshotOf(i),
			EditedAt:     runAt,
		})
	}

	logrus.WithFields(logrus.Fields{
		"cut_off_date": cutOffDate,
		"switch":       len(switchSide),
		"institution":  len(institutionSide),
		"details":      len(details),
	}).Info("conciliation matched")
	return details, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
