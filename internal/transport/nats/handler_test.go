package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tally/internal/model"
)

type mockService struct {
	useReq    model.UseBalanceRequest
	cancelReq model.CancelBalanceRequest
	err       error
}

func (m *mockService) UseBalance(_ context.Context, req model.UseBalanceRequest) (*model.TransactionResult, error) {
	m.useReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.TransactionResult{TransactionID: "t1", Type: model.TransactionTypeUse, Amount: req.Amount}, nil
}

func (m *mockService) CancelBalance(_ context.Context, req model.CancelBalanceRequest) (*model.TransactionResult, error) {
	m.cancelReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.TransactionResult{TransactionID: "t2", Type: model.TransactionTypeCancel, Amount: req.Amount}, nil
}

func (m *mockService) QueryTransaction(context.Context, string) (*model.TransactionResult, error) {
	return nil, nil
}

func (m *mockService) CreateUser(context.Context, model.CreateUserRequest) (*model.AccountUser, error) {
	return nil, nil
}

func (m *mockService) CreateAccount(context.Context, model.CreateAccountRequest) (*model.AccountInfo, error) {
	return nil, nil
}

func (m *mockService) CloseAccount(context.Context, model.CloseAccountRequest) (*model.AccountInfo, error) {
	return nil, nil
}

func (m *mockService) ListAccounts(context.Context, int64) ([]*model.AccountInfo, error) {
	return nil, nil
}

func (m *mockService) ProjectTransaction(context.Context, model.TransactionEvent) error { return nil }

func TestHandler_Use(t *testing.T) {
	svc := &mockService{}
	h := NewHandler(svc, nil, zap.NewNop())

	reply := h.handle(context.Background(), SubjectUse, []byte(`{"userId":1,"accountNumber":"1000000000","amount":300}`))

	require.True(t, reply.Success)
	assert.Nil(t, reply.Error)
	assert.Equal(t, "t1", reply.Transaction.TransactionID)
	assert.Equal(t, model.UseBalanceRequest{UserID: 1, AccountNumber: "1000000000", Amount: 300}, svc.useReq)
}

func TestHandler_Cancel(t *testing.T) {
	svc := &mockService{}
	h := NewHandler(svc, nil, zap.NewNop())

	reply := h.handle(context.Background(), SubjectCancel, []byte(`{"transactionId":"abc","accountNumber":"1000000000","amount":300}`))

	require.True(t, reply.Success)
	assert.Equal(t, "abc", svc.cancelReq.TransactionID)
}

func TestHandler_BusinessErrorIsCoded(t *testing.T) {
	svc := &mockService{err: model.ErrLockTimeout}
	h := NewHandler(svc, nil, zap.NewNop())

	reply := h.handle(context.Background(), SubjectUse, []byte(`{"userId":1,"accountNumber":"1000000000","amount":300}`))

	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, model.CodeLockTimeout, reply.Error.Code)
}

func TestHandler_MalformedCommand(t *testing.T) {
	h := NewHandler(&mockService{}, nil, zap.NewNop())

	reply := h.handle(context.Background(), SubjectUse, []byte(`{`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, model.CodeInvalidRequest, reply.Error.Code)

	reply = h.handle(context.Background(), "commands.unknown", []byte(`{}`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, model.CodeInvalidRequest, reply.Error.Code)
}
