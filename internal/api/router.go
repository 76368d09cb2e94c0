/**
 * @description
 * This file sets up the HTTP router for the ledger service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vchan-in/OhMyBank-Server/internal/auth"
)

// NewRouter creates a new Chi router and registers the ledger routes.
func NewRouter(h *LedgerHandlers, authenticator *auth.Authenticator) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy"))
	})

	// Public routes
	r.Post("/api/v2/accounts", h.CreateAccountHandler)
	r.Post("/api/v2/login", h.LoginHandler)
	r.Get("/api/v2/token/expiry", h.TokenExpiryHandler)

	// Protected routes that require a valid bearer token
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authenticator))

		r.Get("/api/v2/me", h.MeHandler)
		r.Get("/api/v2/accounts", h.ListAccountsHandler)
		r.Post("/api/v2/deposit", h.DepositHandler)
		r.Post("/api/v2/withdraw", h.WithdrawHandler)
		r.Post("/api/v2/transfer", h.TransferHandler)
		r.Get("/api/v2/accounts/{accountID}/balance", h.BalanceHandler)
		r.Get("/api/v2/accounts/{accountID}/transactions", h.TransactionsHandler)
	})

	return r
}
