/**
 * @description
 * This file contains the bearer-token middleware for the HTTP router. It
 * validates the Authorization header against the service's token authority
 * and stores the resolved account in the request context for handlers.
 *
 * @dependencies
 * - internal/auth, internal/domain: Token validation and the account model.
 */

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vchan-in/OhMyBank-Server/internal/auth"
	"github.com/vchan-in/OhMyBank-Server/internal/domain"
)

// accountContextKey is a custom type for the context key to avoid collisions.
type accountContextKey string

const currentAccountKey accountContextKey = "currentAccount"

// BearerToken extracts the token from an Authorization header; the second
// return value is false when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", false
	}
	return token, true
}

// AuthMiddleware validates the bearer token and resolves it to an active
// account before the request reaches a handler.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			account, err := authenticator.CurrentAccount(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeError(w, http.StatusUnauthorized, "Token expired")
				case errors.Is(err, auth.ErrTokenSignature), errors.Is(err, auth.ErrTokenMalformed):
					writeError(w, http.StatusUnauthorized, "Invalid token")
				case errors.Is(err, auth.ErrUnauthenticated):
					writeError(w, http.StatusUnauthorized, "Unauthenticated")
				default:
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), currentAccountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentAccount retrieves the authenticated account from the request
// context. Handlers behind AuthMiddleware should use this.
func CurrentAccount(ctx context.Context) (*domain.Account, bool) {
	account, ok := ctx.Value(currentAccountKey).(*domain.Account)
	return account, ok
}
