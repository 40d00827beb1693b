package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/virtualbank/backend/internal/audit"
	"github.com/virtualbank/backend/internal/config"
	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/ledger"
	"github.com/virtualbank/backend/internal/middleware"
	"github.com/virtualbank/backend/internal/models"
	"github.com/virtualbank/backend/internal/services"
	"github.com/virtualbank/backend/internal/store"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	args := m.Called(email, password)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) DeleteIdentity(ctx context.Context, uid string) error {
	return m.Called(uid).Error(0)
}

func (m *MockProvider) IssueToken(ctx context.Context, email, password string) (string, string, error) {
	args := m.Called(email, password)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockProvider) Authenticate(ctx context.Context, token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Revoke(ctx context.Context, token string) error {
	return m.Called(token).Error(0)
}

type testServer struct {
	router   chi.Router
	provider *MockProvider
	engine   *ledger.Engine
	accounts *store.MemoryAccountStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	accounts := store.NewMemoryAccountStore()
	engine := ledger.NewEngine(accounts, store.NewMemoryTransactionLog(), config.DefaultLedgerConfig(),
		ledger.WithAuditLogger(audit.NewAuditLoggerWithOutput(log.New(io.Discard, "", 0))))
	provider := &MockProvider{}

	router := Routes(NewUserHandler(provider, engine), NewAccountHandler(engine), middleware.NewIdentityGuard(provider))
	return &testServer{router: router, provider: provider, engine: engine, accounts: accounts}
}

// withAccount creates uid's account and lets token authenticate as uid.
func (s *testServer) withAccount(t *testing.T, uid, token string) {
	t.Helper()
	_, err := s.engine.CreateAccount(context.Background(), uid, uid+"@example.com")
	require.NoError(t, err)
	s.provider.On("Authenticate", token).Return(uid, nil)
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) services.ErrorResponse {
	t.Helper()
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestUserHandler_Register(t *testing.T) {
	t.Run("creates identity and zero-balance account", func(t *testing.T) {
		s := newTestServer(t)
		s.provider.On("CreateIdentity", "jane@example.com", "secret123").Return("uid-1", nil)

		w := s.do(http.MethodPost, "/users/register", "", models.RegisterRequest{Email: "jane@example.com", Password: "secret123"})

		require.Equal(t, http.StatusCreated, w.Code)
		var account models.Account
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
		assert.Equal(t, "uid-1", account.UID)
		assert.Equal(t, int64(0), account.Balance)
		assert.Equal(t, models.AccountStatusActive, account.Status)
		assert.Nil(t, account.NegativeSince)
		assert.NotContains(t, w.Body.String(), "version")
	})

	t.Run("validation failure", func(t *testing.T) {
		s := newTestServer(t)

		w := s.do(http.MethodPost, "/users/register", "", models.RegisterRequest{Email: "nope", Password: "1"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Details, "Email")
		s.provider.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := newTestServer(t)
		s.provider.On("CreateIdentity", "jane@example.com", "secret123").Return("", apperrors.ErrAccountAlreadyExists)

		w := s.do(http.MethodPost, "/users/register", "", models.RegisterRequest{Email: "jane@example.com", Password: "secret123"})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("account initialization failure removes identity", func(t *testing.T) {
		s := newTestServer(t)
		_, err := s.engine.CreateAccount(context.Background(), "uid-taken", "old@example.com")
		require.NoError(t, err)
		s.provider.On("CreateIdentity", "jane@example.com", "secret123").Return("uid-taken", nil)
		s.provider.On("DeleteIdentity", "uid-taken").Return(nil)

		w := s.do(http.MethodPost, "/users/register", "", models.RegisterRequest{Email: "jane@example.com", Password: "secret123"})

		assert.Equal(t, http.StatusConflict, w.Code)
		s.provider.AssertCalled(t, "DeleteIdentity", "uid-taken")
	})
}

func TestUserHandler_LoginLogout(t *testing.T) {
	s := newTestServer(t)
	s.provider.On("IssueToken", "jane@example.com", "secret123").Return("tok", "uid-1", nil)
	s.provider.On("IssueToken", "jane@example.com", "wrong").Return("", "", apperrors.ErrInvalidCredentials)
	s.provider.On("Revoke", "tok").Return(nil)

	w := s.do(http.MethodPost, "/users/login", "", models.LoginRequest{Email: "jane@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, LoginResponse{Token: "tok", UID: "uid-1"}, resp)

	w = s.do(http.MethodPost, "/users/login", "", models.LoginRequest{Email: "jane@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/users/logout", "tok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	s.provider.AssertCalled(t, "Revoke", "tok")

	w = s.do(http.MethodPost, "/users/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountHandler_DepositWithdraw(t *testing.T) {
	s := newTestServer(t)
	s.withAccount(t, "u1", "tok-u1")

	w := s.do(http.MethodPost, "/users/u1/deposit", "tok-u1", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, w.Code)
	var view models.AccountView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, int64(100), view.Balance)

	w = s.do(http.MethodPost, "/users/u1/withdraw", "tok-u1", `{"amount": 130}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, int64(-30), view.Balance)
	assert.Equal(t, models.AccountStatusActive, view.Status)
	assert.NotNil(t, view.NegativeSince)

	w = s.do(http.MethodGet, "/users/u1/balance", "tok-u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance models.BalanceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.Equal(t, int64(-30), balance.Balance)
	assert.Equal(t, "u1@example.com", balance.Email)

	w = s.do(http.MethodGet, "/users/u1/transactions", "tok-u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []models.TransactionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, models.TransactionTypeWithdraw, records[0].Type)
	assert.Equal(t, int64(-30), records[0].BalanceAfter)
	assert.Equal(t, models.TransactionTypeDeposit, records[1].Type)
}

func TestAccountHandler_InvalidAmounts(t *testing.T) {
	s := newTestServer(t)
	s.withAccount(t, "u1", "tok-u1")

	bodies := []string{
		`{"amount": 0}`,
		`{"amount": -5}`,
		`{"amount": 10.5}`,
		`{}`,
		`{"amount": 1e30}`,
		`{"amount": "100"}`,
		`{"amount": null}`,
		`{"amount": true}`,
		`{"amount": [100]}`,
	}
	for _, body := range bodies {
		for _, op := range []string{"deposit", "withdraw"} {
			w := s.do(http.MethodPost, "/users/u1/"+op, "tok-u1", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", op, body)
			assert.Equal(t, "Amount must be a positive integer.", decodeError(t, w).Error)
		}
	}

	balance, err := s.engine.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestAccountHandler_AccessControl(t *testing.T) {
	s := newTestServer(t)
	s.withAccount(t, "u1", "tok-u1")
	s.withAccount(t, "u2", "tok-u2")
	s.provider.On("Authenticate", "bad").Return("", apperrors.ErrUnauthorized)

	w := s.do(http.MethodPost, "/users/u1/deposit", "", `{"amount": 10}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/users/u1/deposit", "bad", `{"amount": 10}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/users/u1/deposit", "tok-u2", `{"amount": 10}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/users/u1/transactions", "tok-u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	balance, err := s.engine.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestAccountHandler_MissingAccount(t *testing.T) {
	s := newTestServer(t)
	s.provider.On("Authenticate", "tok-ghost").Return("ghost", nil)

	w := s.do(http.MethodPost, "/users/ghost/deposit", "tok-ghost", `{"amount": 10}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/users/ghost/balance", "tok-ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/users/ghost/transactions", "tok-ghost", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAccountHandler_ConcurrentWithdrawals(t *testing.T) {
	s := newTestServer(t)
	s.withAccount(t, "u1", "tok-u1")
	_, err := s.engine.Deposit(context.Background(), "u1", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(http.MethodPost, "/users/u1/withdraw", "tok-u1", `{"amount": 50}`).Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	balance, err := s.engine.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"100", 100, false},
		{"100.0", 100, false},
		{"1", 1, false},
		{"9223372036854775807", 9223372036854775807, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"10.5", 0, true},
		{"", 0, true},
		{"9007199254740993.0", 9007199254740993, false},
		{"9223372036854775807.000", 9223372036854775807, false},
		{"1e2", 100, false},
		{"9223372036854775808", 0, true},
		{"9223372036854775808.0", 0, true},
		{"1e30", 0, true},
		{"1e-2", 0, true},
		{"1.5e1", 15, false},
		{`"100"`, 0, true},
		{"null", 0, true},
		{"0.0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
