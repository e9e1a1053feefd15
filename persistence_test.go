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
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
	"github.com/jerry-enebeli/conciliation/model"
)

func matchedHeader(t *testing.T) *model.Conciliation {
	t.Helper()
	switchSide := []model.TransactionRecord{
		testRecord("A-10", "100", model.Debit),
		testRecord("B-20", "50", model.Credit),
	}
	institutionSide := []model.TransactionRecord{
		testRecord("A-10", "100", model.Debit),
		testRecord("C-30", "25", model.Credit),
	}
	institutionSide[1].AccountNumber = "5566778899"
	institutionSide[1].AccountType = "CHK"

	details, err := NewMatcher(KeepFirst, fixedClock(matchedAt)).Match(switchSide, institutionSide, testCutOffDate)
	require.NoError(t, err)
	return Aggregate(7, testCutOffDate, matchedAt, details)
}

func TestSave_RoundTripThroughGetDetail(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	header := matchedHeader(t)
	ctx := context.Background()

	var stored *model.Conciliation
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound()).Once()
	mockDS.On("InsertConciliation", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*model.Conciliation)
		}).
		Return(int64(9), nil).Once()

	id, err := c.Save(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, int64(9), header.ID)

	require.NotNil(t, stored)
	require.Len(t, stored.Details, 3)
	assert.NotEqual(t, "0011223344", stored.Details[0].Switch.AccountNumber)
	assert.NotEqual(t, "SAV", stored.Details[0].Institution.AccountType)
	assert.NotEqual(t, "5566778899", stored.Details[2].Institution.AccountNumber)
	assert.Empty(t, stored.Details[2].Switch.AccountNumber)
	assert.Equal(t, "0011223344", header.Details[0].Switch.AccountNumber, "caller's header keeps plaintext")

	stored.ID = id
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(stored, nil)

	details, err := c.GetDetail(ctx, 7, testCutOffDate, AllStates)
	require.NoError(t, err)
	assert.Equal(t, header.Details, details)

	matched, err := c.GetDetail(ctx, 7, testCutOffDate, int(model.Match))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "A-10", matched[0].BusinessKey)

	mismatched, err := c.GetDetail(ctx, 7, testCutOffDate, int(model.Mismatch))
	require.NoError(t, err)
	assert.Len(t, mismatched, 2)
}

func TestSave_ReplacesExistingHeader(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	header := matchedHeader(t)
	createdAt := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	existing := &model.Conciliation{ID: 5, InstitutionCode: 7, CutOffDate: testCutOffDate, Version: 3, CreatedAt: createdAt}
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(existing, nil)
	mockDS.On("ReplaceConciliation", mock.Anything, mock.MatchedBy(func(h *model.Conciliation) bool {
		return h.ID == 5 && h.Version == 3 && h.CreatedAt.Equal(createdAt) && len(h.Details) == 3
	})).Return(nil)

	id, err := c.Save(context.Background(), header)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int64(5), header.ID)
	assert.Equal(t, createdAt, header.CreatedAt)
	mockDS.AssertNotCalled(t, "InsertConciliation", mock.Anything, mock.Anything)
}

func TestSave_StaleVersionIsAConflict(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	header := matchedHeader(t)

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(&model.Conciliation{ID: 5, Version: 3}, nil)
	mockDS.On("ReplaceConciliation", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Conciliation was modified concurrently", nil))

	_, err := c.Save(context.Background(), header)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestSave_LookupFailure(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).
		Return(nil, apierror.NewAPIError(apierror.ErrPersistenceFailure, "Failed to read conciliation", nil))

	_, err := c.Save(context.Background(), matchedHeader(t))
	assert.True(t, apierror.Is(err, apierror.ErrPersistenceFailure))
	mockDS.AssertNotCalled(t, "InsertConciliation", mock.Anything, mock.Anything)
}

func TestSave_RecalculatesPostedTotals(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	header := &model.Conciliation{
		InstitutionCode:    7,
		CutOffDate:         testCutOffDate,
		TransactionCount:   40,
		Pending:            3,
		StatusConciliation: model.PendingWithGaps,
		CreditTotal:        decimal.NewFromInt(999),
		Details: []model.ConciliationDetail{
			detailWith(1, model.Match, 1, "10", model.Credit, 1),
			detailWith(2, model.Mismatch, 1, "4", model.Debit, 1),
		},
	}

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.MatchedBy(func(h *model.Conciliation) bool {
		return h.TransactionCount == 2 &&
			h.Pending == 0 &&
			h.StatusConciliation == model.FullyReconciled &&
			h.CreditTotal.Equal(decimal.NewFromInt(10)) &&
			h.NetAmount.Equal(decimal.NewFromInt(6))
	})).Return(int64(4), nil)

	_, err := c.Save(context.Background(), header)
	require.NoError(t, err)
	assert.Equal(t, model.FullyReconciled, header.StatusConciliation)
	assert.Equal(t, 2, header.Reconciled)
	assert.Equal(t, testNow, header.EditedAt)
	mockDS.AssertExpectations(t)
}

func TestSave_InvalidHeader(t *testing.T) {
	c, _, _ := newTestConciliation(t)

	_, err := c.Save(context.Background(), nil)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = c.Save(context.Background(), &model.Conciliation{CutOffDate: testCutOffDate})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestGetDetail_Errors(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)

	_, err := c.GetDetail(context.Background(), 7, testCutOffDate, 2)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = c.GetDetail(context.Background(), 7, "2024-13-01", AllStates)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	_, err = c.GetDetail(context.Background(), 7, testCutOffDate, AllStates)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

// storedHeader is a persisted header with one matched and one pending line.
func storedHeader() *model.Conciliation {
	header := Aggregate(7, testCutOffDate, matchedAt, []model.ConciliationDetail{
		detailWith(1, model.Match, 1, "10", model.Credit, 1),
		detailWith(2, model.Mismatch, 0, "20", model.Debit, 1),
	})
	header.ID = 5
	header.Version = 2
	return header
}

func TestUpdateDetailAndRecalculate(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	edits := []model.DetailEdit{{ID: 2, Reconciled: 1, Description: "confirmed by the institution"}}

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(storedHeader(), nil).Once()
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(storedHeader(), nil).Once()
	mockDS.On("ReplaceConciliation", mock.Anything, mock.MatchedBy(func(h *model.Conciliation) bool {
		d := h.Details[1]
		return h.ID == 5 && d.Reconciled == 1 && d.Description == "confirmed by the institution" && d.EditedAt.Equal(testNow)
	})).Return(nil).Twice()

	first, err := c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, edits)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Pending)
	assert.Equal(t, 2, first.Reconciled)
	assert.Equal(t, 1, first.TransactionError, "manual review does not change the match state")
	assert.Equal(t, model.FullyReconciled, first.StatusConciliation)
	assert.Equal(t, "20.00", first.DebitTotalConciled.StringFixed(2))
	assert.Equal(t, "-10.00", first.NetAmountConciled.StringFixed(2))
	assert.Equal(t, testNow, first.EditedAt)

	second, err := c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, edits)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	mockDS.AssertExpectations(t)
}

func TestUpdateDetailAndRecalculate_UnknownDetailLeavesHeaderUntouched(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	header := storedHeader()
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(header, nil)

	_, err := c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, []model.DetailEdit{
		{ID: 2, Reconciled: 1},
		{ID: 9, Reconciled: 1},
	})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
	assert.Contains(t, err.Error(), "detail 9 does not exist")
	assert.Equal(t, 0, header.Details[1].Reconciled)
	mockDS.AssertNotCalled(t, "ReplaceConciliation", mock.Anything, mock.Anything)
}

func TestUpdateDetailAndRecalculate_Errors(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)

	_, err := c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, nil)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, []model.DetailEdit{{ID: 1, Reconciled: 2}})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
	mockDS.AssertNotCalled(t, "FindConciliationByKey", mock.Anything, mock.Anything, mock.Anything)

	mockDS.On("FindConciliationByKey", mock.Anything, 7, "2024-03-01").Return(nil, notFound())
	_, err = c.UpdateDetailAndRecalculate(context.Background(), 7, "2024-03-01", []model.DetailEdit{{ID: 1, Reconciled: 0}})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(storedHeader(), nil)
	mockDS.On("ReplaceConciliation", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Conciliation was modified concurrently", nil))
	_, err = c.UpdateDetailAndRecalculate(context.Background(), 7, testCutOffDate, []model.DetailEdit{{ID: 1, Reconciled: 0}})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}
