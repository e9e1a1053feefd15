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
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jerry-enebeli/conciliation/model"
)

// allStates mirrors conciliation.AllStates; requests that omit a filter get it.
const allStates = -1

var dateRule = validation.Date(model.DateLayout).Error("must be formatted as YYYY-MM-DD")

type RunConciliation struct {
	InstitutionCode int    `json:"institution_code"`
	CutOffDate      string `json:"cut_off_date"`
}

func (r *RunConciliation) ValidateRunConciliation() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&r.CutOffDate, validation.Required, dateRule),
	)
}

// SaveConciliation carries a header produced by an earlier execute call.
type SaveConciliation struct {
	Conciliation *model.Conciliation `json:"conciliation"`
}

func (s *SaveConciliation) ValidateSaveConciliation() error {
	if s.Conciliation == nil {
		return errors.New("conciliation: cannot be blank.")
	}
	h := s.Conciliation
	return validation.ValidateStruct(h,
		validation.Field(&h.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&h.CutOffDate, validation.Required, dateRule),
		validation.Field(&h.Details, validation.By(func(value interface{}) error {
			details, _ := value.([]model.ConciliationDetail)
			for _, d := range details {
				if d.Reconciled != 0 && d.Reconciled != 1 {
					return fmt.Errorf("detail %d: reconciled must be 0 or 1", d.ID)
				}
			}
			return nil
		})),
	)
}

type ListByStatus struct {
	InstitutionCode int    `json:"institution_code"`
	FromDate        string `json:"from_date"`
	Status          *int   `json:"status"`
}

func (l *ListByStatus) ValidateListByStatus() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&l.FromDate, validation.Required, dateRule),
		validation.Field(&l.Status, validation.In(-1, 0, 1, 2).Error("must be -1, 0, 1 or 2")),
	)
}

// StatusFilter returns the requested filter, all states when omitted.
func (l *ListByStatus) StatusFilter() int {
	if l.Status == nil {
		return allStates
	}
	return *l.Status
}

type GetDetail struct {
	InstitutionCode int    `json:"institution_code"`
	CutOffDate      string `json:"cut_off_date"`
	State           *int   `json:"state"`
}

func (g *GetDetail) ValidateGetDetail() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&g.CutOffDate, validation.Required, dateRule),
		validation.Field(&g.State, validation.In(-1, 0, 1).Error("must be -1, 0 or 1")),
	)
}

func (g *GetDetail) StateFilter() int {
	if g.State == nil {
		return allStates
	}
	return *g.State
}

type UpdateDetail struct {
	InstitutionCode int                `json:"institution_code"`
	CutOffDate      string             `json:"cut_off_date"`
	Details         []model.DetailEdit `json:"details"`
}

func (u *UpdateDetail) ValidateUpdateDetail() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&u.CutOffDate, validation.Required, dateRule),
		validation.Field(&u.Details, validation.Required, validation.Each(validation.By(validateDetailEdit))),
	)
}

func validateDetailEdit(value interface{}) error {
	edit, ok := value.(model.DetailEdit)
	if !ok {
		return errors.New("invalid detail edit")
	}
	if edit.ID <= 0 {
		return errors.New("id must be a positive number")
	}
	if edit.Reconciled != 0 && edit.Reconciled != 1 {
		return fmt.Errorf("reconciled must be 0 or 1 for detail %d", edit.ID)
	}
	return nil
}

type SyncSwitchTransactions struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

func (s *SyncSwitchTransactions) ValidateSyncSwitchTransactions() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.FromDate, validation.Required, dateRule),
		validation.Field(&s.ToDate, validation.Required, dateRule),
	)
}

type SyncInstitutionTransactions struct {
	InstitutionCode int      `json:"institution_code"`
	FromDate        string   `json:"from_date"`
	ToDate          string   `json:"to_date"`
	Services        []string `json:"services"`
}

func (s *SyncInstitutionTransactions) ValidateSyncInstitutionTransactions() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.InstitutionCode, validation.Required, validation.Min(1)),
		validation.Field(&s.FromDate, validation.Required, dateRule),
		validation.Field(&s.ToDate, validation.Required, dateRule),
		validation.Field(&s.Services, validation.Each(validation.Required)),
	)
}
