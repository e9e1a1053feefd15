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
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/internal/apierror"
	redlock "github.com/jerry-enebeli/conciliation/internal/lock"
	"github.com/jerry-enebeli/conciliation/model"
)

func runTask(t *testing.T, institutionCode int, cutOffDate string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(RunPayload{InstitutionCode: institutionCode, CutOffDate: cutOffDate})
	require.NoError(t, err)
	return asynq.NewTask(TypeRunConciliation, payload)
}

func TestEnqueueRun(t *testing.T) {
	c, _, _ := newTestConciliation(t)
	ctx := context.Background()

	id, err := c.EnqueueRun(ctx, 7, testCutOffDate)
	require.NoError(t, err)
	assert.Equal(t, "7_2024-03-05", id)
	assert.Equal(t, config.DEFAULT_RUN_QUEUE, c.Queue().Name())

	info, err := c.Queue().Inspector.GetTaskInfo(config.DEFAULT_RUN_QUEUE, id)
	require.NoError(t, err)
	assert.Equal(t, TypeRunConciliation, info.Type)
	assert.Equal(t, 3, info.MaxRetry)

	var payload RunPayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, RunPayload{InstitutionCode: 7, CutOffDate: testCutOffDate}, payload)

	_, err = c.EnqueueRun(ctx, 7, testCutOffDate)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	other, err := c.EnqueueRun(ctx, 7, "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, "7_2024-03-04", other)
}

func TestEnqueueRun_InvalidInput(t *testing.T) {
	c, _, _ := newTestConciliation(t)

	_, err := c.EnqueueRun(context.Background(), 0, testCutOffDate)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = c.EnqueueRun(context.Background(), 7, "2024/03/05")
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}

func TestProcessRunTask(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	expectSides(t, c, mockDS)
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.Anything).Return(int64(3), nil)

	err := c.ProcessRunTask(context.Background(), runTask(t, 7, testCutOffDate))
	assert.NoError(t, err)
	mockDS.AssertExpectations(t)
}

func TestProcessRunTask_SkipsRetryForBadInput(t *testing.T) {
	c, _, _ := newTestConciliation(t)

	err := c.ProcessRunTask(context.Background(), asynq.NewTask(TypeRunConciliation, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = c.ProcessRunTask(context.Background(), runTask(t, 0, testCutOffDate))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessRunTask_RetriesUpstreamFailure(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	mockDS.On("GetSwitchTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{}, nil).Maybe()
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	err := c.ProcessRunTask(context.Background(), runTask(t, 7, testCutOffDate))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.True(t, apierror.Is(err, apierror.ErrUpstreamFailure))
}

func TestProcessRunTask_SaveFailureRetriesOnlyTheSave(t *testing.T) {
	c, mockDS, mr := newTestConciliation(t)
	expectSides(t, c, mockDS)
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection reset")).Once()
	mockDS.On("InsertConciliation", mock.Anything, mock.MatchedBy(func(h *model.Conciliation) bool {
		return h.TransactionCount == 2 && len(h.Details) == 2
	})).Return(int64(11), nil).Once()

	err := c.ProcessRunTask(context.Background(), runTask(t, 7, testCutOffDate))
	require.NoError(t, err)

	mockDS.AssertNumberOfCalls(t, "GetSwitchTransactions", 1)
	mockDS.AssertNumberOfCalls(t, "GetInstitutionTransactions", 1)
	mockDS.AssertNumberOfCalls(t, "InsertConciliation", 2)
	assert.False(t, mr.Exists(redlock.RunKey(7, testCutOffDate)), "run lock must be released")
}

func TestProcessRunTask_SaveKeepsFailing(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	expectSides(t, c, mockDS)
	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	err := c.ProcessRunTask(context.Background(), runTask(t, 7, testCutOffDate))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "a failed save must not re-run matching")
	assert.True(t, apierror.Is(err, apierror.ErrPersistenceFailure))

	mockDS.AssertNumberOfCalls(t, "GetSwitchTransactions", 1)
	mockDS.AssertNumberOfCalls(t, "GetInstitutionTransactions", 1)
	mockDS.AssertNumberOfCalls(t, "InsertConciliation", 5)
}
