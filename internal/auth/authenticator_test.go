package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vchan-in/OhMyBank-Server/internal/domain"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
)

const testSecret = "unit-test-signing-secret"

func newTestAuthenticator(t *testing.T, ttl time.Duration) (*Authenticator, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	return NewAuthenticator(repo, testSecret, ttl, bcrypt.MinCost), repo
}

func seedAccount(t *testing.T, a *Authenticator, repo *store.MemoryRepository, username, password string, active bool) *domain.Account {
	t.Helper()
	hash, err := a.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	account, err := repo.CreateAccount(context.Background(), &domain.Account{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		AccountType:  domain.SavingsAccount,
		Currency:     "USD",
		IsActive:     active,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

func TestHashPasswordRoundtrip(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Minute)
	hash, err := a.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatalf("password stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")); err != nil {
		t.Fatalf("hash does not verify against the original password: %v", err)
	}

	// Two hashes of the same password must differ (per-hash salt).
	other, err := a.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if other == hash {
		t.Fatalf("expected distinct salted hashes, got identical digests")
	}
}

func TestVerifyCredentials(t *testing.T) {
	a, repo := newTestAuthenticator(t, time.Minute)
	seedAccount(t, a, repo, "alice", "correct-horse", true)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid credentials", username: "alice", password: "correct-horse"},
		{name: "wrong password", username: "alice", password: "battery-staple", wantErr: ErrInvalidCredentials},
		{name: "unknown username", username: "mallory", password: "correct-horse", wantErr: store.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := a.VerifyCredentials(context.Background(), tt.username, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account.Username != tt.username {
				t.Fatalf("expected account %s, got %s", tt.username, account.Username)
			}
		})
	}
}

func TestDummyComparisonHashIsWellFormed(t *testing.T) {
	// The unknown-username path burns a bcrypt comparison against this digest
	// so lookup misses take as long as password mismatches. A malformed digest
	// would make CompareHashAndPassword bail out early and defeat that.
	cost, err := bcrypt.Cost(dummyComparisonHash)
	if err != nil {
		t.Fatalf("dummy digest is not a valid bcrypt hash: %v", err)
	}
	if cost < bcrypt.MinCost {
		t.Fatalf("unexpected cost %d", cost)
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	a, repo := newTestAuthenticator(t, time.Minute)
	account := seedAccount(t, a, repo, "alice", "correct-horse", true)

	token, expiresAt, err := a.IssueToken(account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining <= 0 || remaining > time.Minute {
		t.Fatalf("expiry outside configured ttl: %v", remaining)
	}

	subject, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("expected subject alice, got %s", subject)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	a, repo := newTestAuthenticator(t, -time.Minute)
	account := seedAccount(t, a, repo, "alice", "correct-horse", true)

	token, _, err := a.IssueToken(account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := a.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	// Expiry introspection still works on an expired token.
	expiry, err := a.ExpiryOf(token)
	if err != nil {
		t.Fatalf("ExpiryOf: %v", err)
	}
	if !expiry.Before(time.Now()) {
		t.Fatalf("expected past expiry, got %v", expiry)
	}
}

func TestValidateTokenRejectsForgeries(t *testing.T) {
	a, repo := newTestAuthenticator(t, time.Minute)
	account := seedAccount(t, a, repo, "alice", "correct-horse", true)
	token, _, err := a.IssueToken(account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	foreign := NewAuthenticator(repo, "some-other-secret", time.Minute, bcrypt.MinCost)
	foreignToken, _, err := foreign.IssueToken(account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "wrong signing key", token: foreignToken, want: ErrTokenSignature},
		{name: "tampered payload", token: token[:len(token)-4] + "AAAA", want: ErrTokenSignature},
		{name: "not a token", token: "definitely-not-a-jwt", want: ErrTokenMalformed},
		{name: "empty string", token: "", want: ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.ValidateToken(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCurrentAccount(t *testing.T) {
	a, repo := newTestAuthenticator(t, time.Minute)
	alice := seedAccount(t, a, repo, "alice", "correct-horse", true)
	dormant := seedAccount(t, a, repo, "dormant", "correct-horse", false)

	aliceToken, _, err := a.IssueToken(alice)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	dormantToken, _, err := a.IssueToken(dormant)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	account, err := a.CurrentAccount(context.Background(), aliceToken)
	if err != nil {
		t.Fatalf("CurrentAccount: %v", err)
	}
	if account.AccountID != alice.AccountID {
		t.Fatalf("expected account %d, got %d", alice.AccountID, account.AccountID)
	}

	if _, err := a.CurrentAccount(context.Background(), dormantToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for deactivated account, got %v", err)
	}
}
