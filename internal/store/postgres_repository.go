/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to persist accounts and journal
 * entries, relying on row-level locks (`SELECT ... FOR UPDATE`) inside
 * explicit transactions for balance mutations and on UNIQUE constraints for
 * duplicate detection.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vchan-in/OhMyBank-Server/internal/domain"
)

const accountColumns = `account_id, username, email, password_hash, account_type, balance, currency, phone, address, is_active, is_admin, created_at, updated_at`

const transactionColumns = `transaction_id, account_id, type, amount, currency, status, description, linked_transaction_id, timestamp, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row pgx.Row, a *domain.Account) error {
	return row.Scan(
		&a.AccountID, &a.Username, &a.Email, &a.PasswordHash, &a.AccountType,
		&a.Balance, &a.Currency, &a.Phone, &a.Address, &a.IsActive, &a.IsAdmin,
		&a.CreatedAt, &a.UpdatedAt,
	)
}

func scanTransaction(row pgx.Row, t *domain.Transaction) error {
	return row.Scan(
		&t.TransactionID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
		&t.Status, &t.Description, &t.LinkedTransactionID, &t.Timestamp,
		&t.CreatedAt, &t.UpdatedAt,
	)
}

// mapUniqueViolation translates a 23505 unique-constraint violation into the
// matching duplicate sentinel error, or returns the original error.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return ErrDuplicateEmail
		}
		return ErrDuplicateUsername
	}
	return err
}

// mapForeignKeyViolation translates a 23503 foreign-key violation on a
// journal insert into ErrAccountNotFound, or returns the original error.
func mapForeignKeyViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrAccountNotFound
	}
	return err
}

// CreateAccount inserts a new account row. The account_id is allocated by the
// database sequence, so identifiers are monotonic and collision-free.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (username, email, password_hash, account_type, balance, currency, phone, address, is_active, is_admin)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9)
		RETURNING ` + accountColumns
	var created domain.Account
	err := scanAccount(r.db.QueryRow(ctx, query,
		account.Username, account.Email, account.PasswordHash, account.AccountType,
		account.Currency, account.Phone, account.Address, account.IsActive, account.IsAdmin,
	), &created)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &created, nil
}

// FindAccountByID retrieves an account by its identifier.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1`
	if err := scanAccount(r.db.QueryRow(ctx, query, accountID), &account); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByUsername retrieves an account by its unique username.
func (r *PostgresRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(username) = LOWER($1)`
	if err := scanAccount(r.db.QueryRow(ctx, query, username), &account); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns all accounts in creation order.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY account_id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := scanAccount(rows, &a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// applyDeltaTx adjusts one account's balance inside an existing transaction.
// The row is locked with FOR UPDATE so concurrent mutations on the same
// account serialize.
func applyDeltaTx(ctx context.Context, tx pgx.Tx, accountID int64, delta int64, currency string) (*domain.Account, error) {
	var balance int64
	var accountCurrency string
	err := tx.QueryRow(ctx, `SELECT balance, currency FROM accounts WHERE account_id = $1 FOR UPDATE`, accountID).
		Scan(&balance, &accountCurrency)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(accountCurrency, currency) {
		return nil, ErrCurrencyMismatch
	}
	if balance+delta < 0 {
		return nil, ErrInsufficientFunds
	}

	var updated domain.Account
	query := `UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE account_id = $2 RETURNING ` + accountColumns
	if err := scanAccount(tx.QueryRow(ctx, query, delta, accountID), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ApplyDelta performs an atomic balance mutation on a single account.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, accountID int64, delta int64, currency string) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := applyDeltaTx(ctx, tx, accountID, delta, currency)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// ApplyTransferDeltas debits `fromID` and credits `toID` in one database
// transaction. Rows are locked in ascending account-id order so that two
// transfers crossing in opposite directions cannot deadlock.
func (r *PostgresRepository) ApplyTransferDeltas(ctx context.Context, fromID, toID int64, amount int64, currency string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	first, second := fromID, toID
	if toID < fromID {
		first, second = toID, fromID
	}
	// Lock both rows up front, lowest id first.
	for _, id := range []int64{first, second} {
		var exists int64
		if err := tx.QueryRow(ctx, `SELECT account_id FROM accounts WHERE account_id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
			if err == pgx.ErrNoRows {
				return ErrAccountNotFound
			}
			return err
		}
	}

	if _, err := applyDeltaTx(ctx, tx, fromID, -amount, currency); err != nil {
		return err
	}
	if _, err := applyDeltaTx(ctx, tx, toID, amount, currency); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateTransaction appends a pending journal entry.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (account_id, type, amount, currency, status, description, linked_transaction_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + transactionColumns
	var created domain.Transaction
	err := scanTransaction(r.db.QueryRow(ctx, query,
		t.AccountID, t.Type, t.Amount, t.Currency, t.Status, t.Description, t.LinkedTransactionID,
	), &created)
	if err != nil {
		return nil, mapForeignKeyViolation(err)
	}
	return &created, nil
}

// CreateTransferPair appends both legs of a transfer atomically and
// cross-links them.
func (r *PostgresRepository) CreateTransferPair(ctx context.Context, out, in *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO transactions (account_id, type, amount, currency, status, description, linked_transaction_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + transactionColumns

	var outCreated domain.Transaction
	if err := scanTransaction(tx.QueryRow(ctx, insert,
		out.AccountID, out.Type, out.Amount, out.Currency, out.Status, out.Description, nil,
	), &outCreated); err != nil {
		return mapForeignKeyViolation(err)
	}

	var inCreated domain.Transaction
	if err := scanTransaction(tx.QueryRow(ctx, insert,
		in.AccountID, in.Type, in.Amount, in.Currency, in.Status, in.Description, &outCreated.TransactionID,
	), &inCreated); err != nil {
		return mapForeignKeyViolation(err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transactions SET linked_transaction_id = $1, updated_at = NOW() WHERE transaction_id = $2`,
		inCreated.TransactionID, outCreated.TransactionID,
	); err != nil {
		return err
	}
	outCreated.LinkedTransactionID = &inCreated.TransactionID

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*out = outCreated
	*in = inCreated
	return nil
}

// UpdateTransactionStatus applies a pending-only status transition. The WHERE
// clause guards against racing updates: a non-pending row is never mutated.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus) (*domain.Transaction, error) {
	if !domain.ValidTransition(domain.StatusPending, status) {
		// A missing entry reports not-found ahead of the illegal transition.
		if _, err := r.FindTransactionByID(ctx, transactionID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}

	query := `
		UPDATE transactions SET status = $1, updated_at = NOW()
		WHERE transaction_id = $2 AND status = 'pending'
		RETURNING ` + transactionColumns
	var updated domain.Transaction
	err := scanTransaction(r.db.QueryRow(ctx, query, status, transactionID), &updated)
	if err == nil {
		return &updated, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	// No pending row matched: distinguish missing from already-settled.
	var existing domain.TransactionStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM transactions WHERE transaction_id = $1`, transactionID).Scan(&existing)
	if err == pgx.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

// FindTransactionByID retrieves a single journal entry.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var t domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	if err := scanTransaction(r.db.QueryRow(ctx, query, transactionID), &t); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTransactionsForAccount returns the journal for one account, oldest
// entry first.
func (r *PostgresRepository) ListTransactionsForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 ORDER BY transaction_id`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
