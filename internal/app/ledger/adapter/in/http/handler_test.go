package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	identitymemory "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/adapter/out/memory"
	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/usecase"
	httpapi "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/in/http"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/out/memory"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/jwtutil"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	promcollector "github.com/JoeShih716/go-stmt-ledger/pkg/metrics/prometheus"
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T, opts ...httpapi.Option) *testServer {
	t.Helper()
	ledger, err := memory.NewMutexLedger(nil)
	require.NoError(t, err)
	core := usecase.NewCoreUseCase(ledger, usecase.WithLogger(logging.NewNoOpLogger()))

	tokens, err := jwtutil.NewManager(jwtutil.Config{Secret: "test-secret", Issuer: "ledger", TTL: time.Hour})
	require.NoError(t, err)
	ids := identity.NewService(identitymemory.NewUserRepository(), core, tokens,
		identity.WithBcryptCost(bcrypt.MinCost),
		identity.WithLogger(logging.NewNoOpLogger()),
	)

	opts = append([]httpapi.Option{httpapi.WithLogger(logging.NewNoOpLogger())}, opts...)
	srv := httptest.NewServer(httpapi.NewHandler(core, ids, opts...).Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

// signUp 註冊並登入，回傳 token
func (s *testServer) signUp(name, email string) string {
	s.t.Helper()
	status, _ := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": name, "email": email, "password": "secret",
	})
	require.Equal(s.t, http.StatusCreated, status)

	status, body := s.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": email, "password": "secret",
	})
	require.Equal(s.t, http.StatusOK, status)
	token, ok := body["token"].(string)
	require.True(s.t, ok)
	return token
}

func TestUsersAndSessions(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "PasswordHash")

	// 重複 email
	status, body = s.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"email": "alice@example.com", "password": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", body["status"])

	status, body = s.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": "alice@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", user["name"])

	status, body = s.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "incorrect email or password", body["message"])

	status, _ = s.do(http.MethodPost, "/api/v1/sessions", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("Alice", "alice@example.com")

	status, body := s.do(http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alice", body["name"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["created_at"])
}

func TestStatementsFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("Alice", "alice@example.com")

	status, dep := s.do(http.MethodPost, "/api/v1/statements/deposit", token, map[string]any{
		"amount": 500, "description": "salary",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "deposit", dep["type"])
	assert.Equal(t, float64(500), dep["amount"])
	depID, _ := dep["id"].(string)
	require.NotEmpty(t, depID)

	status, _ = s.do(http.MethodPost, "/api/v1/statements/deposit", token, map[string]any{
		"amount": 500, "description": "bonus",
	})
	require.Equal(t, http.StatusCreated, status)

	status, wd := s.do(http.MethodPost, "/api/v1/statements/withdraw", token, map[string]any{
		"amount": 100, "description": "rent",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "withdraw", wd["type"])

	status, body := s.do(http.MethodPost, "/api/v1/statements/withdraw", token, map[string]any{
		"amount": 901, "description": "too much",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "insufficient balance", body["message"])

	status, body = s.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(900), body["balance"])
	stmts, ok := body["statement"].([]any)
	require.True(t, ok)
	assert.Len(t, stmts, 3)

	status, body = s.do(http.MethodGet, "/api/v1/statements/"+depID, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, depID, body["id"])
	assert.Equal(t, "salary", body["description"])
}

func TestStatementValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("Alice", "alice@example.com")

	tests := []struct {
		name string
		body any
	}{
		{"zero amount", map[string]any{"amount": 0, "description": "x"}},
		{"negative amount", map[string]any{"amount": -1, "description": "x"}},
		{"fractional amount", map[string]any{"amount": 1.5, "description": "x"}},
		{"missing description", map[string]any{"amount": 10}},
		{"not json", "plain string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(http.MethodPost, "/api/v1/statements/deposit", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "error", body["status"])
		})
	}

	status, body := s.do(http.MethodGet, "/api/v1/statements/balance", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["balance"])
	assert.Empty(t, body["statement"])
}

func TestStatementOfOtherUserIsNotFound(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("Alice", "alice@example.com")
	bob := s.signUp("Bob", "bob@example.com")

	status, dep := s.do(http.MethodPost, "/api/v1/statements/deposit", alice, map[string]any{
		"amount": 500, "description": "alice salary",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(http.MethodGet, "/api/v1/statements/"+dep["id"].(string), bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "statement not found", body["message"])

	status, _ = s.do(http.MethodGet, "/api/v1/statements/01ARZ3NDEKTSV4RRFFQ69G5FAV", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/profile"},
		{http.MethodPost, "/api/v1/statements/deposit"},
		{http.MethodPost, "/api/v1/statements/withdraw"},
		{http.MethodGet, "/api/v1/statements/balance"},
		{http.MethodGet, "/api/v1/statements/some-id"},
	}
	for _, p := range paths {
		status, _ := s.do(p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, p.path)

		status, _ = s.do(p.method, p.path, "invalid-token", nil)
		assert.Equal(t, http.StatusUnauthorized, status, p.path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := promcollector.NewCollector("test")
	require.NoError(t, collector.Register(registry))

	var unhealthy atomic.Bool
	s := newTestServer(t,
		httpapi.WithMetrics(collector, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		httpapi.WithHealthCheck(func(ctx context.Context) error {
			if unhealthy.Load() {
				return errors.New("database down")
			}
			return nil
		}),
	)

	status, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	unhealthy.Store(true)
	status, _ = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "error", body["status"])
}
