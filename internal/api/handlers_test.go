package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vchan-in/OhMyBank-Server/internal/app"
	"github.com/vchan-in/OhMyBank-Server/internal/auth"
	"github.com/vchan-in/OhMyBank-Server/internal/domain"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
)

// testServer bundles the router with direct handles on its collaborators so
// tests can seed state below the HTTP surface.
type testServer struct {
	router        http.Handler
	repo          *store.MemoryRepository
	authenticator *auth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := store.NewMemoryRepository()
	authenticator := auth.NewAuthenticator(repo, "api-test-secret", 45*time.Minute, bcrypt.MinCost)
	service := app.NewService(repo, authenticator, nil, nil)
	handlers := NewLedgerHandlers(service)
	return &testServer{
		router:        NewRouter(handlers, authenticator),
		repo:          repo,
		authenticator: authenticator,
	}
}

// do performs a request against the router. A non-empty token is sent as a
// bearer Authorization header; a non-nil body is JSON-encoded.
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func (ts *testServer) register(t *testing.T, username string) domain.AccountView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v2/accounts", "", domain.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "long-enough-password",
		Currency: "USD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rec.Code, rec.Body.String())
	}
	var view domain.AccountView
	decodeBody(t, rec, &view)
	return view
}

func (ts *testServer) login(t *testing.T, username string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v2/login", "", domain.LoginRequest{
		Username: username,
		Password: "long-enough-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatalf("login %s: empty access token", username)
	}
	return resp.AccessToken
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	aliceToken := ts.login(t, "alice")

	// Deposit into the caller's own account (account_id defaults to caller).
	rec := ts.do(t, http.MethodPost, "/api/v2/deposit", aliceToken, domain.DepositRequest{Amount: 500, Currency: "USD"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var deposit domain.Transaction
	decodeBody(t, rec, &deposit)
	if deposit.Status != domain.StatusCompleted || deposit.AccountID != alice.AccountID {
		t.Fatalf("unexpected deposit entry: %+v", deposit)
	}

	// Overdraft is rejected with 402 and the balance is untouched.
	rec = ts.do(t, http.MethodPost, "/api/v2/withdraw", aliceToken, domain.WithdrawRequest{Amount: 700, Currency: "USD"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overdraft: expected 402, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v2/accounts/%d/balance", alice.AccountID), aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var balance domain.AccountBalance
	decodeBody(t, rec, &balance)
	if balance.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", balance.Balance)
	}

	// Transfer to bob, then verify both balances and the journal.
	rec = ts.do(t, http.MethodPost, "/api/v2/transfer", aliceToken, domain.TransferRequest{
		ToAccountID: bob.AccountID, Amount: 200, Currency: "USD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var transfer struct {
		Outgoing domain.Transaction `json:"outgoing_transaction"`
		Incoming domain.Transaction `json:"incoming_transaction"`
	}
	decodeBody(t, rec, &transfer)
	if transfer.Outgoing.Status != domain.StatusCompleted || transfer.Incoming.Status != domain.StatusCompleted {
		t.Fatalf("unexpected transfer legs: %+v", transfer)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v2/accounts/%d/transactions", alice.AccountID), aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []domain.Transaction
	decodeBody(t, rec, &entries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(entries))
	}
	if entries[1].Status != domain.StatusFailed {
		t.Fatalf("rejected withdrawal must appear as failed, got %+v", entries[1])
	}

	// /me returns the sanitized caller view.
	rec = ts.do(t, http.MethodGet, "/api/v2/me", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	var me domain.AccountView
	decodeBody(t, rec, &me)
	if me.Username != "alice" || me.Balance != 300 {
		t.Fatalf("unexpected /me view: %+v", me)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{name: "no token", method: http.MethodPost, path: "/api/v2/deposit", token: ""},
		{name: "garbage token", method: http.MethodPost, path: "/api/v2/deposit", token: "not-a-token"},
		{name: "balance without token", method: http.MethodGet, path: fmt.Sprintf("/api/v2/accounts/%d/balance", alice.AccountID), token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.token, domain.DepositRequest{Amount: 100, Currency: "USD"})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			// Middleware rejections use the same JSON envelope as handlers.
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected application/json, got %q", ct)
			}
			var payload struct {
				Error string `json:"error"`
			}
			decodeBody(t, rec, &payload)
			if payload.Error == "" {
				t.Fatalf("expected an error message in the JSON body")
			}
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	account, err := ts.repo.FindAccountByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindAccountByUsername: %v", err)
	}
	expiredAuthority := auth.NewAuthenticator(ts.repo, "api-test-secret", -time.Minute, bcrypt.MinCost)
	expiredToken, _, err := expiredAuthority.IssueToken(account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v2/me", expiredToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}

	// The public expiry endpoint still introspects the expired token.
	rec = ts.do(t, http.MethodGet, "/api/v2/token/expiry", expiredToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token expiry: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	decodeBody(t, rec, &payload)
	if !payload.ExpiresAt.Before(time.Now()) {
		t.Fatalf("expected past expiry, got %v", payload.ExpiresAt)
	}
}

func TestCrossAccountAccessForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	bob := ts.register(t, "bob")
	aliceToken := ts.login(t, "alice")

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v2/accounts/%d/balance", bob.AccountID), aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("balance: expected 403, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v2/deposit", aliceToken, domain.DepositRequest{
		AccountID: bob.AccountID, Amount: 100, Currency: "USD",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("deposit: expected 403, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v2/accounts", aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("list accounts: expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestAdminListsAccounts(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	hash, err := ts.authenticator.HashPassword("long-enough-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin, err := ts.repo.CreateAccount(context.Background(), &domain.Account{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		AccountType:  domain.CheckingAccount,
		Currency:     "USD",
		IsActive:     true,
		IsAdmin:      true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	adminToken, _, err := ts.authenticator.IssueToken(admin)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v2/accounts", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var views []domain.AccountView
	decodeBody(t, rec, &views)
	if len(views) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(views))
	}

	// Admins may act on other accounts.
	rec = ts.do(t, http.MethodPost, "/api/v2/deposit", adminToken, domain.DepositRequest{
		AccountID: views[0].AccountID, Amount: 50, Currency: "USD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin deposit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// A deposit to an account that does not exist is not-found, not a 500.
	rec = ts.do(t, http.MethodPost, "/api/v2/deposit", adminToken, domain.DepositRequest{
		AccountID: 42, Amount: 50, Currency: "USD",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("admin deposit to unknown account: expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	token := ts.login(t, "alice")

	tests := []struct {
		name string
		run  func(t *testing.T) *httptest.ResponseRecorder
		want int
	}{
		{
			name: "invalid registration json",
			run: func(t *testing.T) *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodPost, "/api/v2/accounts", bytes.NewReader([]byte("{not json")))
				rec := httptest.NewRecorder()
				ts.router.ServeHTTP(rec, req)
				return rec
			},
			want: http.StatusBadRequest,
		},
		{
			name: "duplicate username",
			run: func(t *testing.T) *httptest.ResponseRecorder {
				return ts.do(t, http.MethodPost, "/api/v2/accounts", "", domain.RegisterRequest{
					Username: "alice", Email: "alice2@example.com", Password: "long-enough-password", Currency: "USD",
				})
			},
			want: http.StatusConflict,
		},
		{
			name: "wrong password",
			run: func(t *testing.T) *httptest.ResponseRecorder {
				return ts.do(t, http.MethodPost, "/api/v2/login", "", domain.LoginRequest{Username: "alice", Password: "wrong-password!"})
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "non-numeric account id",
			run: func(t *testing.T) *httptest.ResponseRecorder {
				return ts.do(t, http.MethodGet, "/api/v2/accounts/abc/balance", token, nil)
			},
			want: http.StatusBadRequest,
		},
		{
			name: "self transfer",
			run: func(t *testing.T) *httptest.ResponseRecorder {
				return ts.do(t, http.MethodPost, "/api/v2/transfer", token, domain.TransferRequest{ToAccountID: alice.AccountID, Amount: 10, Currency: "USD"})
			},
			want: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.run(t)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
