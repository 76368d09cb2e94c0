/**
 * @description
 * This file contains the HTTP handlers for the ledger service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @notes
 * - Errors from the core are mapped to status codes and fixed messages here;
 *   internal error text is never echoed to the caller.
 *
 * @dependencies
 * - internal/app, internal/auth, internal/domain, internal/store: Service
 *   logic, models and sentinel errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vchan-in/OhMyBank-Server/internal/app"
	"github.com/vchan-in/OhMyBank-Server/internal/auth"
	"github.com/vchan-in/OhMyBank-Server/internal/domain"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// CreateAccountHandler handles account registration.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.service.Register(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_account outcome=failed username=%s err=%v", req.Username, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

// LoginHandler handles credential authentication and token issuance.
func (h *LedgerHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=login outcome=failed username=%s err=%v", req.Username, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DepositHandler credits the caller's account.
func (h *LedgerHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == 0 {
		req.AccountID = caller.AccountID
	}
	if !h.authorizeAccountAccess(w, caller, req.AccountID) {
		return
	}

	tx, err := h.service.Deposit(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=failed account_id=%d err=%v", req.AccountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// WithdrawHandler debits the caller's account.
func (h *LedgerHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}

	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == 0 {
		req.AccountID = caller.AccountID
	}
	if !h.authorizeAccountAccess(w, caller, req.AccountID) {
		return
	}

	tx, err := h.service.Withdraw(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=failed account_id=%d err=%v", req.AccountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// transferResponse carries both settled legs of a transfer.
type transferResponse struct {
	OutgoingTransaction *domain.Transaction `json:"outgoing_transaction"`
	IncomingTransaction *domain.Transaction `json:"incoming_transaction"`
}

// TransferHandler moves funds from the caller's account to another account.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FromAccountID == 0 {
		req.FromAccountID = caller.AccountID
	}
	if !h.authorizeAccountAccess(w, caller, req.FromAccountID) {
		return
	}

	out, in, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed from=%d to=%d err=%v", req.FromAccountID, req.ToAccountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, transferResponse{OutgoingTransaction: out, IncomingTransaction: in})
}

// ListAccountsHandler returns every account; admin only.
func (h *LedgerHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}
	if !caller.IsAdmin {
		h.writeError(w, http.StatusForbidden, "Admin access required")
		return
	}

	views, err := h.service.ListAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts outcome=failed err=%v", err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

// BalanceHandler returns the balance projection for one account.
func (h *LedgerHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}
	accountID, ok := h.accountIDParam(w, r)
	if !ok {
		return
	}
	if !h.authorizeAccountAccess(w, caller, accountID) {
		return
	}

	balance, err := h.service.BalanceOf(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// TransactionsHandler returns one account's journal, oldest entry first.
func (h *LedgerHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}
	accountID, ok := h.accountIDParam(w, r)
	if !ok {
		return
	}
	if !h.authorizeAccountAccess(w, caller, accountID) {
		return
	}

	transactions, err := h.service.TransactionsOf(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// MeHandler returns the sanitized view of the caller's account.
func (h *LedgerHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := CurrentAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account from context")
		return
	}
	h.writeJSON(w, http.StatusOK, caller.View())
}

// TokenExpiryHandler introspects the bearer token's expiry without requiring
// that the token is still valid.
func (h *LedgerHandlers) TokenExpiryHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}

	expiry, err := h.service.Authenticator().ExpiryOf(token)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"expires_at": expiry})
}

// accountIDParam parses the {accountID} URL parameter.
func (h *LedgerHandlers) accountIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "accountID")
	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || accountID <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return 0, false
	}
	return accountID, true
}

// authorizeAccountAccess permits an account holder to act on their own
// account and admins to act on any account.
func (h *LedgerHandlers) authorizeAccountAccess(w http.ResponseWriter, caller *domain.Account, accountID int64) bool {
	if caller.IsAdmin || caller.AccountID == accountID {
		return true
	}
	h.writeError(w, http.StatusForbidden, "Not permitted for this account")
	return false
}

// writeServiceError maps core sentinel errors to status codes and fixed
// messages.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrUnknownCurrency),
		errors.Is(err, app.ErrInvalidUsername),
		errors.Is(err, app.ErrInvalidEmail),
		errors.Is(err, app.ErrWeakPassword),
		errors.Is(err, app.ErrInvalidAccountType):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateUsername),
		errors.Is(err, store.ErrDuplicateEmail),
		errors.Is(err, app.ErrSelfTransfer),
		errors.Is(err, store.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrCurrencyMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

// writeError writes a JSON error payload with the given status code.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError writes a JSON error payload with the given status code. Handlers
// and middleware share it so every error on the API surface carries the same
// envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
