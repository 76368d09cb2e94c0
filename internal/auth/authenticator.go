/**
 * @description
 * This file implements credential verification and bearer-token handling for
 * the ledger service. Passwords are hashed with bcrypt (salted, CPU-hard) and
 * compared with bcrypt's constant-time comparison. Tokens are HS256-signed
 * JWTs carrying the account's username as subject plus issued-at and expiry
 * claims; they are stateless and verified by signature and expiry alone.
 *
 * @notes
 * - There is no revocation list: a token stays valid until its expiry. Logout
 *   is a client-side discard.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token signing and validation.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 */

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vchan-in/OhMyBank-Server/internal/domain"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenSignature     = errors.New("token signature invalid")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// Authenticator verifies credentials and issues time-bounded bearer tokens.
type Authenticator struct {
	repo       store.Repository
	secret     []byte
	ttl        time.Duration
	bcryptCost int
}

// NewAuthenticator creates an Authenticator. A non-positive bcrypt cost falls
// back to the library default.
func NewAuthenticator(repo store.Repository, secret string, ttl time.Duration, bcryptCost int) *Authenticator {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Authenticator{
		repo:       repo,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcryptCost,
	}
}

// TokenTTL returns the configured token time-to-live.
func (a *Authenticator) TokenTTL() time.Duration {
	return a.ttl
}

// HashPassword derives the stored digest for a raw password.
func (a *Authenticator) HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), a.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyComparisonHash is a throwaway bcrypt digest compared against on the
// unknown-username path so that lookup misses cost the same as a password
// mismatch and response timing reveals neither.
var dummyComparisonHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// VerifyCredentials checks a username/password pair against the store.
// It returns store.ErrAccountNotFound for an unknown username and
// ErrInvalidCredentials for a password mismatch; callers that must not reveal
// which field was wrong collapse both.
func (a *Authenticator) VerifyCredentials(ctx context.Context, username, rawPassword string) (*domain.Account, error) {
	account, err := a.repo.FindAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyComparisonHash, []byte(rawPassword))
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(rawPassword)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// IssueToken signs a bearer token for the account with the configured TTL.
func (a *Authenticator) IssueToken(account *domain.Account) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   account.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature and expiry and returns the token subject.
func (a *Authenticator) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	_, err := parser.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

// ExpiryOf returns a token's expiry without requiring that the token is still
// valid. Signature and shape are still checked.
func (a *Authenticator) ExpiryOf(tokenString string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return time.Time{}, ErrTokenSignature
		}
		return time.Time{}, ErrTokenMalformed
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrTokenMalformed
	}
	return claims.ExpiresAt.Time, nil
}

// CurrentAccount resolves a validated token to its account. Tokens for
// accounts that no longer exist or have been deactivated are rejected.
func (a *Authenticator) CurrentAccount(ctx context.Context, tokenString string) (*domain.Account, error) {
	subject, err := a.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	account, err := a.repo.FindAccountByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrUnauthenticated
	}
	return account, nil
}

func (a *Authenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	return a.secret, nil
}
