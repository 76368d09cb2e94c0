/**
 * @description
 * This file provides an in-memory implementation of the `Repository`
 * interface. It backs local development when no DATABASE_URL is configured
 * and the package tests. A single mutex serializes every mutation, so all
 * balance changes for an account observe a linearizable sequence and a
 * transfer's two deltas apply as one unit.
 *
 * @notes
 * - Accounts and transactions are handed out as copies; callers never hold
 *   pointers into the store's internal maps.
 * - Identifiers are monotonic counters, mirroring the database sequences.
 */

package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vchan-in/OhMyBank-Server/internal/domain"
)

const firstAccountID = 100000001

// MemoryRepository is a thread-safe, in-memory implementation of Repository.
type MemoryRepository struct {
	mu sync.Mutex

	nextAccountID     int64
	nextTransactionID int64

	accounts      map[int64]*domain.Account
	usernameIndex map[string]int64
	emailIndex    map[string]int64
	accountOrder  []int64

	transactions     map[int64]*domain.Transaction
	transactionOrder []int64
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextAccountID:     firstAccountID,
		nextTransactionID: 1,
		accounts:          make(map[int64]*domain.Account),
		usernameIndex:     make(map[string]int64),
		emailIndex:        make(map[string]int64),
		transactions:      make(map[int64]*domain.Transaction),
	}
}

// CreateAccount persists a new account with a zero balance and a monotonic ID.
func (r *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	usernameKey := strings.ToLower(account.Username)
	emailKey := strings.ToLower(account.Email)
	if _, exists := r.usernameIndex[usernameKey]; exists {
		return nil, ErrDuplicateUsername
	}
	if _, exists := r.emailIndex[emailKey]; exists {
		return nil, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	created := *account
	created.AccountID = r.nextAccountID
	created.Balance = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	r.nextAccountID++

	r.accounts[created.AccountID] = &created
	r.usernameIndex[usernameKey] = created.AccountID
	r.emailIndex[emailKey] = created.AccountID
	r.accountOrder = append(r.accountOrder, created.AccountID)

	cp := created
	return &cp, nil
}

// FindAccountByID returns a snapshot of the account with the given ID.
func (r *MemoryRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

// FindAccountByUsername returns a snapshot of the account with the given
// username.
func (r *MemoryRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.usernameIndex[strings.ToLower(username)]
	if !exists {
		return nil, ErrAccountNotFound
	}
	cp := *r.accounts[id]
	return &cp, nil
}

// SetAccountActive flips an account's active flag.
func (r *MemoryRepository) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return ErrAccountNotFound
	}
	account.IsActive = active
	account.UpdatedAt = time.Now().UTC()
	return nil
}

// ListAccounts returns snapshots of all accounts in creation order.
func (r *MemoryRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]domain.Account, 0, len(r.accountOrder))
	for _, id := range r.accountOrder {
		accounts = append(accounts, *r.accounts[id])
	}
	return accounts, nil
}

// applyDeltaLocked mutates one balance. Caller must hold r.mu.
func (r *MemoryRepository) applyDeltaLocked(accountID int64, delta int64, currency string) (*domain.Account, error) {
	account, exists := r.accounts[accountID]
	if !exists {
		return nil, ErrAccountNotFound
	}
	if !strings.EqualFold(account.Currency, currency) {
		return nil, ErrCurrencyMismatch
	}
	if account.Balance+delta < 0 {
		return nil, ErrInsufficientFunds
	}
	account.Balance += delta
	account.UpdatedAt = time.Now().UTC()
	cp := *account
	return &cp, nil
}

// ApplyDelta atomically adjusts one account's balance.
func (r *MemoryRepository) ApplyDelta(ctx context.Context, accountID int64, delta int64, currency string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyDeltaLocked(accountID, delta, currency)
}

// ApplyTransferDeltas applies the debit and credit inside one critical
// section: either both balances change or neither does.
func (r *MemoryRepository) ApplyTransferDeltas(ctx context.Context, fromID, toID int64, amount int64, currency string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the credit leg before touching the debit leg so a failure
	// leaves no partial effect.
	to, exists := r.accounts[toID]
	if !exists {
		return ErrAccountNotFound
	}
	if !strings.EqualFold(to.Currency, currency) {
		return ErrCurrencyMismatch
	}
	if _, err := r.applyDeltaLocked(fromID, -amount, currency); err != nil {
		return err
	}
	if _, err := r.applyDeltaLocked(toID, amount, currency); err != nil {
		// Unreachable given the validation above, but restore the debit
		// rather than leak money if it ever trips.
		r.accounts[fromID].Balance += amount
		return err
	}
	return nil
}

// CreateTransaction appends a journal entry with a monotonic ID.
func (r *MemoryRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := r.createTransactionLocked(t)
	cp := *created
	return &cp, nil
}

func (r *MemoryRepository) createTransactionLocked(t *domain.Transaction) *domain.Transaction {
	now := time.Now().UTC()
	created := *t
	created.TransactionID = r.nextTransactionID
	created.Timestamp = now
	created.CreatedAt = now
	created.UpdatedAt = now
	r.nextTransactionID++

	r.transactions[created.TransactionID] = &created
	r.transactionOrder = append(r.transactionOrder, created.TransactionID)
	return &created
}

// CreateTransferPair appends both transfer legs and cross-links them.
func (r *MemoryRepository) CreateTransferPair(ctx context.Context, out, in *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	outCreated := r.createTransactionLocked(out)
	inCreated := r.createTransactionLocked(in)
	outCreated.LinkedTransactionID = &inCreated.TransactionID
	inCreated.LinkedTransactionID = &outCreated.TransactionID

	*out = *outCreated
	*in = *inCreated
	return nil
}

// UpdateTransactionStatus applies a pending-only status transition.
func (r *MemoryRepository) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.transactions[transactionID]
	if !exists {
		return nil, ErrTransactionNotFound
	}
	if !domain.ValidTransition(t.Status, status) {
		return nil, ErrInvalidTransition
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

// FindTransactionByID returns a snapshot of one journal entry.
func (r *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.transactions[transactionID]
	if !exists {
		return nil, ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTransactionsForAccount returns the account's journal entries, oldest
// first.
func (r *MemoryRepository) ListTransactionsForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Transaction
	for _, id := range r.transactionOrder {
		if t := r.transactions[id]; t.AccountID == accountID {
			result = append(result, *t)
		}
	}
	return result, nil
}
