/**
 * @description
 * This file defines the interface for the data access layer and the sentinel
 * errors it reports. Defining an interface allows for dependency injection and
 * easy stubbing in tests, and keeps the business logic decoupled from the
 * concrete PostgreSQL implementation.
 *
 * @notes
 * - Any component that needs to interact with the store should depend on this
 *   interface, not on a concrete implementation.
 * - ApplyDelta is the single balance-mutation primitive: deposits,
 *   withdrawals and both transfer legs go through it (directly, or via
 *   ApplyTransferDeltas for the atomic two-account case).
 */

package store

import (
	"context"
	"errors"

	"github.com/vchan-in/OhMyBank-Server/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateUsername   = errors.New("username already registered")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrInvalidTransition   = errors.New("invalid transaction status transition")
)

// Repository defines the contract for durable account and transaction storage.
type Repository interface {
	// CreateAccount persists a new account with a store-allocated monotonic
	// account ID and a zero balance. Username and email are unique.
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	// ListAccounts returns all accounts in creation order.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// ApplyDelta atomically adjusts one account's balance. A negative delta
	// that would drive the balance below zero fails with ErrInsufficientFunds
	// and leaves the balance untouched. The expected currency must match the
	// account's currency.
	ApplyDelta(ctx context.Context, accountID int64, delta int64, currency string) (*domain.Account, error)

	// ApplyTransferDeltas debits the source and credits the destination as a
	// single all-or-nothing unit. Row locks are acquired in ascending
	// account-id order so that crossing transfers cannot deadlock.
	ApplyTransferDeltas(ctx context.Context, fromID, toID int64, amount int64, currency string) error

	// CreateTransaction appends a pending journal entry and allocates its
	// monotonic transaction ID.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	// CreateTransferPair appends the two legs of a transfer atomically and
	// cross-links them via LinkedTransactionID.
	CreateTransferPair(ctx context.Context, out, in *domain.Transaction) error
	// UpdateTransactionStatus applies a status transition. Only
	// pending→completed and pending→failed are legal.
	UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	// ListTransactionsForAccount returns the account's journal entries in
	// creation order, oldest first.
	ListTransactionsForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error)
}
