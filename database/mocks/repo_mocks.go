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
package mocks

import (
	"context"
	"time"

	"github.com/jerry-enebeli/conciliation/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Switch transaction methods

func (m *MockDataSource) GetSwitchTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	args := m.Called(ctx, institutionCode, from, to)
	records, _ := args.Get(0).([]model.TransactionRecord)
	return records, args.Error(1)
}

func (m *MockDataSource) ReplaceSwitchWindow(ctx context.Context, from, to time.Time, records []model.TransactionRecord) (int, error) {
	args := m.Called(ctx, from, to, records)
	return args.Int(0), args.Error(1)
}

// Institution transaction methods

func (m *MockDataSource) GetInstitutionTransactions(ctx context.Context, institutionCode int, from, to time.Time) ([]model.TransactionRecord, error) {
	args := m.Called(ctx, institutionCode, from, to)
	records, _ := args.Get(0).([]model.TransactionRecord)
	return records, args.Error(1)
}

func (m *MockDataSource) ReplaceInstitutionWindow(ctx context.Context, institutionCode int, from, to time.Time, records []model.TransactionRecord) (int, error) {
	args := m.Called(ctx, institutionCode, from, to, records)
	return args.Int(0), args.Error(1)
}

// Conciliation methods

func (m *MockDataSource) FindConciliationByKey(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, error) {
	args := m.Called(ctx, institutionCode, cutOffDate)
	header, _ := args.Get(0).(*model.Conciliation)
	return header, args.Error(1)
}

func (m *MockDataSource) InsertConciliation(ctx context.Context, header *model.Conciliation) (int64, error) {
	args := m.Called(ctx, header)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ReplaceConciliation(ctx context.Context, header *model.Conciliation) error {
	args := m.Called(ctx, header)
	return args.Error(0)
}

func (m *MockDataSource) ListConciliationsInRange(ctx context.Context, institutionCode int, fromDate, toDate string) ([]model.HeaderSummary, error) {
	args := m.Called(ctx, institutionCode, fromDate, toDate)
	summaries, _ := args.Get(0).([]model.HeaderSummary)
	return summaries, args.Error(1)
}

// Institution methods

func (m *MockDataSource) FindInstitutionByCode(ctx context.Context, code int) (*model.Institution, error) {
	args := m.Called(ctx, code)
	inst, _ := args.Get(0).(*model.Institution)
	return inst, args.Error(1)
}

func (m *MockDataSource) GetAllInstitutions(ctx context.Context) ([]model.Institution, error) {
	args := m.Called(ctx)
	institutions, _ := args.Get(0).([]model.Institution)
	return institutions, args.Error(1)
}
