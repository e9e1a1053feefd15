package conciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/conciliation/database/mocks"
	"github.com/jerry-enebeli/conciliation/internal/apierror"
	redlock "github.com/jerry-enebeli/conciliation/internal/lock"
	"github.com/jerry-enebeli/conciliation/model"
)

func expectSides(t *testing.T, c *Conciliation, mockDS *mocks.MockDataSource) {
	t.Helper()
	from, to := dayBounds(t, testCutOffDate)
	switchSide := []model.TransactionRecord{
		testRecord("B-20", "50", model.Credit),
		testRecord("A-10", "100", model.Debit),
	}
	institutionSide := []model.TransactionRecord{
		testRecord("A-10", "100", model.Debit),
	}
	mockDS.On("GetSwitchTransactions", mock.Anything, 7, from, to).Return(mustSeal(t, c, switchSide), nil)
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, from, to).Return(mustSeal(t, c, institutionSide), nil)
}

func TestRun(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	expectSides(t, c, mockDS)

	header, err := c.Run(context.Background(), 7, testCutOffDate)
	require.NoError(t, err)

	require.Len(t, header.Details, 2)
	assert.Equal(t, "A-10", header.Details[0].BusinessKey)
	assert.Equal(t, model.Match, header.Details[0].State)
	assert.Equal(t, "0011223344", header.Details[0].Switch.AccountNumber)
	assert.Equal(t, "SAV", header.Details[0].Institution.AccountType)
	assert.Equal(t, "B-20", header.Details[1].BusinessKey)
	assert.Equal(t, observationMissingInstitution, header.Details[1].Observation)

	assert.Equal(t, 7, header.InstitutionCode)
	assert.Equal(t, testCutOffDate, header.CutOffDate)
	assert.Equal(t, testNow, header.ConciliationDate)
	assert.Equal(t, 1, header.Pending)
	assert.Equal(t, "100.00", header.DebitTotal.StringFixed(2))
	assert.Equal(t, "-100.00", header.NetAmount.StringFixed(2))
	assert.Equal(t, model.PendingWithGaps, header.StatusConciliation)
	mockDS.AssertExpectations(t)
}

func TestRun_InvalidInput(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)

	tests := []struct {
		name string
		code int
		date string
	}{
		{name: "zero institution", code: 0, date: testCutOffDate},
		{name: "missing date", code: 7, date: ""},
		{name: "malformed date", code: 7, date: "05/03/2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.code, tt.date)
			assert.True(t, apierror.Is(err, apierror.ErrInvalidInput), "got %v", err)
		})
	}
	mockDS.AssertNotCalled(t, "GetSwitchTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_UpstreamFailure(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	mockDS.On("GetSwitchTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{}, nil).Maybe()
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	header, err := c.Run(context.Background(), 7, testCutOffDate)
	assert.Nil(t, header)
	assert.True(t, apierror.Is(err, apierror.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "Failed to read transactions for institution 7 on 2024-03-05")

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())
}

func TestRun_FetchTimeout(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	c.fetchTimeout = 20 * time.Millisecond

	mockDS.On("GetSwitchTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{}, nil).Maybe()
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := c.Run(context.Background(), 7, testCutOffDate)
	assert.True(t, apierror.Is(err, apierror.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "Timed out reading transactions")
}

func TestRun_UnreadableAccountNumber(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	broken := testRecord("A-10", "100", model.Debit)
	broken.AccountNumber = "v1:not-base64!"

	mockDS.On("GetSwitchTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{broken}, nil)
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{}, nil).Maybe()

	_, err := c.Run(context.Background(), 7, testCutOffDate)
	assert.True(t, apierror.Is(err, apierror.ErrInternalServer))

	var apiErr apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable())
}

func TestRun_UnreadableAccountTypeOnInstitutionSide(t *testing.T) {
	c, mockDS, _ := newTestConciliation(t)
	broken := mustSeal(t, c, []model.TransactionRecord{testRecord("A-10", "100", model.Debit)})[0]
	broken.AccountType = "v1:%%%"

	mockDS.On("GetSwitchTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{}, nil).Maybe()
	mockDS.On("GetInstitutionTransactions", mock.Anything, 7, mock.Anything, mock.Anything).Return([]model.TransactionRecord{broken}, nil)

	_, err := c.Run(context.Background(), 7, testCutOffDate)
	assert.True(t, apierror.Is(err, apierror.ErrInternalServer))
	assert.Contains(t, err.Error(), "Failed to decrypt stored transactions")
}

func TestRunAndSave_InsertsNewHeader(t *testing.T) {
	c, mockDS, mr := newTestConciliation(t)
	expectSides(t, c, mockDS)

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.MatchedBy(func(h *model.Conciliation) bool {
		return h.InstitutionCode == 7 && len(h.Details) == 2 && h.Details[0].Switch.AccountNumber != "0011223344"
	})).Return(int64(42), nil)

	header, id, err := c.RunAndSave(context.Background(), 7, testCutOffDate)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), header.ID)
	assert.Equal(t, "0011223344", header.Details[0].Switch.AccountNumber)
	assert.False(t, mr.Exists(redlock.RunKey(7, testCutOffDate)), "run lock must be released")
	mockDS.AssertExpectations(t)
}

func TestRunAndSave_LockHeld(t *testing.T) {
	c, mockDS, mr := newTestConciliation(t)
	require.NoError(t, mr.Set(redlock.RunKey(7, testCutOffDate), "another-run"))

	header, id, err := c.RunAndSave(context.Background(), 7, testCutOffDate)
	assert.Nil(t, header)
	assert.Zero(t, id)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Contains(t, err.Error(), "already running")

	got, _ := mr.Get(redlock.RunKey(7, testCutOffDate))
	assert.Equal(t, "another-run", got)
	mockDS.AssertNotCalled(t, "GetSwitchTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunAndSave_SaveFailureKeepsResult(t *testing.T) {
	c, mockDS, mr := newTestConciliation(t)
	expectSides(t, c, mockDS)

	mockDS.On("FindConciliationByKey", mock.Anything, 7, testCutOffDate).Return(nil, notFound())
	mockDS.On("InsertConciliation", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection reset by peer"))

	header, id, err := c.RunAndSave(context.Background(), 7, testCutOffDate)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrPersistenceFailure))
	assert.Zero(t, id)
	require.NotNil(t, header)
	assert.Equal(t, 2, header.TransactionCount)
	assert.Zero(t, header.ID)
	assert.False(t, mr.Exists(redlock.RunKey(7, testCutOffDate)))
}
