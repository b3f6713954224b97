package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tally/internal/model"
)

type mockService struct {
	err        error
	lastUse    model.UseBalanceRequest
	lastCancel model.CancelBalanceRequest
	lastQuery  string
	lastClose  model.CloseAccountRequest
	lastUserID int64
}

func (m *mockService) UseBalance(_ context.Context, req model.UseBalanceRequest) (*model.TransactionResult, error) {
	m.lastUse = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.TransactionResult{TransactionID: "t1", AccountNumber: req.AccountNumber, Amount: req.Amount, BalanceSnapshot: 9000}, nil
}

func (m *mockService) CancelBalance(_ context.Context, req model.CancelBalanceRequest) (*model.TransactionResult, error) {
	m.lastCancel = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.TransactionResult{TransactionID: "t2", Amount: req.Amount}, nil
}

func (m *mockService) QueryTransaction(_ context.Context, id string) (*model.TransactionResult, error) {
	m.lastQuery = id
	if m.err != nil {
		return nil, m.err
	}
	return &model.TransactionResult{TransactionID: id}, nil
}

func (m *mockService) CreateUser(_ context.Context, req model.CreateUserRequest) (*model.AccountUser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.AccountUser{ID: 1, Name: req.Name}, nil
}

func (m *mockService) CreateAccount(_ context.Context, req model.CreateAccountRequest) (*model.AccountInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.AccountInfo{AccountNumber: "1000000000", UserID: req.UserID, Balance: req.InitialBalance, Status: model.AccountStatusActive}, nil
}

func (m *mockService) CloseAccount(_ context.Context, req model.CloseAccountRequest) (*model.AccountInfo, error) {
	m.lastClose = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.AccountInfo{AccountNumber: req.AccountNumber, Status: model.AccountStatusClosed}, nil
}

func (m *mockService) ListAccounts(_ context.Context, userID int64) ([]*model.AccountInfo, error) {
	m.lastUserID = userID
	if m.err != nil {
		return nil, m.err
	}
	return []*model.AccountInfo{{AccountNumber: "1000000000", UserID: userID}}, nil
}

func (m *mockService) ProjectTransaction(context.Context, model.TransactionEvent) error { return nil }

func do(t *testing.T, svc *mockService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewRouter(svc, []string{"https://ops.example.com"}, zap.NewNop()).ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.Error {
	t.Helper()
	var e model.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHandler_UseBalance(t *testing.T) {
	svc := &mockService{}
	rec := do(t, svc, http.MethodPost, "/transaction/use", `{"userId":1,"accountNumber":"1000000000","amount":1000}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, model.UseBalanceRequest{UserID: 1, AccountNumber: "1000000000", Amount: 1000}, svc.lastUse)

	var res model.TransactionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "t1", res.TransactionID)
	assert.Equal(t, int64(9000), res.BalanceSnapshot)
}

func TestHandler_CancelBalance(t *testing.T) {
	svc := &mockService{}
	rec := do(t, svc, http.MethodPost, "/transaction/cancel", `{"transactionId":"abc","accountNumber":"1000000000","amount":1000}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.lastCancel.TransactionID)
}

func TestHandler_QueryTransaction(t *testing.T) {
	svc := &mockService{}
	rec := do(t, svc, http.MethodGet, "/transaction/abc123", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", svc.lastQuery)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   model.Code
	}{
		{model.ErrAccountNotFound, http.StatusNotFound, model.CodeAccountNotFound},
		{model.ErrUserNotFound, http.StatusNotFound, model.CodeUserNotFound},
		{model.ErrInsufficientFunds, http.StatusUnprocessableEntity, model.CodeInsufficientFunds},
		{model.ErrPartialCancelNotAllowed, http.StatusUnprocessableEntity, model.CodePartialCancelNotAllowed},
		{model.ErrCancelWindowExpired, http.StatusUnprocessableEntity, model.CodeCancelWindowExpired},
		{model.ErrAccountClosed, http.StatusConflict, model.CodeAccountClosed},
		{model.ErrUserAccountMismatch, http.StatusConflict, model.CodeUserAccountMismatch},
		{model.ErrTransactionAlreadyCanceled, http.StatusConflict, model.CodeTransactionAlreadyCanceled},
		{model.ErrLockTimeout, http.StatusLocked, model.CodeLockTimeout},
		{fmt.Errorf("%w: amount must be positive", model.ErrInvalidRequest), http.StatusBadRequest, model.CodeInvalidRequest},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError, model.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantCode), func(t *testing.T) {
			rec := do(t, &mockService{err: tt.err}, http.MethodPost, "/transaction/use", `{"userId":1,"accountNumber":"1","amount":1}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Description)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	rec := do(t, &mockService{}, http.MethodPost, "/transaction/use", `{"amount":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestHandler_Accounts(t *testing.T) {
	svc := &mockService{}

	rec := do(t, svc, http.MethodPost, "/account", `{"userId":7,"initialBalance":500}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var info model.AccountInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, int64(7), info.UserID)
	assert.Equal(t, int64(500), info.Balance)

	rec = do(t, svc, http.MethodDelete, "/account", `{"userId":7,"accountNumber":"1000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CloseAccountRequest{UserID: 7, AccountNumber: "1000000000"}, svc.lastClose)

	rec = do(t, svc, http.MethodGet, "/account?user_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), svc.lastUserID)

	rec = do(t, svc, http.MethodGet, "/account?user_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CreateUser(t *testing.T) {
	rec := do(t, &mockService{}, http.MethodPost, "/user", `{"name":"yoon"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var u model.AccountUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "yoon", u.Name)
}

func TestHandler_Health(t *testing.T) {
	rec := do(t, &mockService{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/transaction/use", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	NewRouter(&mockService{}, []string{"https://ops.example.com"}, zap.NewNop()).ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/transaction/use", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	NewRouter(&mockService{}, []string{"https://ops.example.com"}, zap.NewNop()).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Metrics(t *testing.T) {
	rec := do(t, &mockService{}, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
