/**
 * @description
 * This file contains the core business logic for the ledger service. The
 * `Service` struct composes the credential/account store, the transaction
 * journal, the authenticator, the metrics collector and the optional event
 * producer into the account-creation, login, deposit, withdraw, transfer and
 * query operations.
 *
 * Key features:
 * - Every monetary operation is journaled: a pending entry is recorded first,
 *   the balance delta is applied atomically, and the entry is settled to
 *   completed or failed. A failed delta never leaves a partial effect.
 * - A transfer's debit and credit apply as one all-or-nothing unit with both
 *   journal legs cross-linked.
 * - Callers receive typed sentinel errors; raw internal error text is never
 *   surfaced through operation results.
 *
 * @dependencies
 * - internal/auth, internal/domain, internal/store: Core collaborators.
 * - pkg/metrics, pkg/rabbitmq: Instrumentation and event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vchan-in/OhMyBank-Server/internal/auth"
	"github.com/vchan-in/OhMyBank-Server/internal/domain"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
	"github.com/vchan-in/OhMyBank-Server/pkg/metrics"
	"github.com/vchan-in/OhMyBank-Server/pkg/rabbitmq"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive number of minor units")
	ErrUnknownCurrency    = errors.New("currency must be a three-letter ISO code")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
	ErrInvalidUsername    = errors.New("username must be at least 3 characters")
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidAccountType = errors.New("unknown account type")
)

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	authenticator *auth.Authenticator
	collector     *metrics.Collector
	eventProducer rabbitmq.Publisher
}

// NewService creates a new ledger service instance. The event producer may be
// nil when no broker is configured.
func NewService(repo store.Repository, authenticator *auth.Authenticator, collector *metrics.Collector, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		authenticator: authenticator,
		collector:     collector,
		eventProducer: producer,
	}
}

// Authenticator exposes the token authority for the HTTP layer's middleware.
func (s *Service) Authenticator() *auth.Authenticator {
	return s.authenticator
}

// Register creates a new account with a hashed password and a zero balance.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AccountView, error) {
	if len(req.Username) < 3 {
		return nil, ErrInvalidUsername
	}
	if !validEmail(req.Email) {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	currency, ok := normalizeCurrency(req.Currency)
	if !ok {
		return nil, ErrUnknownCurrency
	}
	accountType := req.AccountType
	if accountType == "" {
		accountType = domain.SavingsAccount
	}
	if accountType != domain.SavingsAccount && accountType != domain.CheckingAccount {
		return nil, ErrInvalidAccountType
	}

	hash, err := s.authenticator.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateAccount(ctx, &domain.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		AccountType:  accountType,
		Currency:     currency,
		Phone:        req.Phone,
		Address:      req.Address,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger msg=\"account created\" account_id=%d username=%s", created.AccountID, created.Username)
	view := created.View()
	return &view, nil
}

// Login verifies credentials and issues a bearer token. A bad username and a
// bad password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	account, err := s.authenticator.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, auth.ErrInvalidCredentials
	}

	token, expiresAt, err := s.authenticator.IssueToken(account)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// Deposit credits an account and journals the event.
func (s *Service) Deposit(ctx context.Context, req domain.DepositRequest) (*domain.Transaction, error) {
	return s.applySingleLeg(ctx, domain.TransactionDeposit, req.AccountID, req.Amount, req.Currency, req.Description)
}

// Withdraw debits an account and journals the event. Insufficient funds leave
// the journal entry failed and the balance unchanged.
func (s *Service) Withdraw(ctx context.Context, req domain.WithdrawRequest) (*domain.Transaction, error) {
	return s.applySingleLeg(ctx, domain.TransactionWithdrawal, req.AccountID, req.Amount, req.Currency, req.Description)
}

// applySingleLeg journals and applies a deposit or withdrawal.
func (s *Service) applySingleLeg(ctx context.Context, txType domain.TransactionType, accountID, amount int64, rawCurrency, description string) (*domain.Transaction, error) {
	start := time.Now()
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency, ok := normalizeCurrency(rawCurrency)
	if !ok {
		return nil, ErrUnknownCurrency
	}

	// The account must exist before anything is journaled.
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	// 1. Record the pending journal entry.
	entry, err := s.repo.CreateTransaction(ctx, &domain.Transaction{
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount,
		Currency:    currency,
		Status:      domain.StatusPending,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	// 2. Apply the balance delta.
	delta := amount
	if txType == domain.TransactionWithdrawal {
		delta = -amount
	}
	account, err := s.repo.ApplyDelta(ctx, accountID, delta, currency)
	if err != nil {
		s.settle(ctx, entry, domain.StatusFailed)
		s.recordMetrics(txType, start, false)
		return nil, err
	}

	// 3. Settle the journal entry.
	settled := s.settle(ctx, entry, domain.StatusCompleted)
	s.recordMetrics(txType, start, true)
	if s.collector != nil {
		s.collector.UpdateAccountBalance(account.AccountID, account.Currency, account.Balance)
	}
	return settled, nil
}

// Transfer moves funds between two accounts as one atomic unit with two
// cross-linked journal entries.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, *domain.Transaction, error) {
	start := time.Now()
	if req.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	currency, ok := normalizeCurrency(req.Currency)
	if !ok {
		return nil, nil, ErrUnknownCurrency
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, nil, ErrSelfTransfer
	}

	// Both accounts must exist before anything is journaled.
	if _, err := s.repo.FindAccountByID(ctx, req.FromAccountID); err != nil {
		return nil, nil, err
	}
	if _, err := s.repo.FindAccountByID(ctx, req.ToAccountID); err != nil {
		return nil, nil, err
	}

	// 1. Record both pending legs, cross-linked.
	out := &domain.Transaction{
		AccountID:   req.FromAccountID,
		Type:        domain.TransactionTransferOut,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      domain.StatusPending,
		Description: req.Description,
	}
	in := &domain.Transaction{
		AccountID:   req.ToAccountID,
		Type:        domain.TransactionTransferIn,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      domain.StatusPending,
		Description: req.Description,
	}
	if err := s.repo.CreateTransferPair(ctx, out, in); err != nil {
		return nil, nil, err
	}

	// 2. Apply debit and credit as one all-or-nothing unit.
	if err := s.repo.ApplyTransferDeltas(ctx, req.FromAccountID, req.ToAccountID, req.Amount, currency); err != nil {
		s.settle(ctx, out, domain.StatusFailed)
		s.settle(ctx, in, domain.StatusFailed)
		s.recordMetrics(domain.TransactionTransferOut, start, false)
		return nil, nil, err
	}

	// 3. Settle both legs.
	outSettled := s.settle(ctx, out, domain.StatusCompleted)
	inSettled := s.settle(ctx, in, domain.StatusCompleted)
	s.recordMetrics(domain.TransactionTransferOut, start, true)
	return outSettled, inSettled, nil
}

// BalanceOf returns the read-only balance projection for an account.
func (s *Service) BalanceOf(ctx context.Context, accountID int64) (*domain.AccountBalance, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountBalance{
		AccountID: account.AccountID,
		Balance:   account.Balance,
		Currency:  account.Currency,
	}, nil
}

// TransactionsOf returns an account's journal entries, oldest first.
func (s *Service) TransactionsOf(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsForAccount(ctx, accountID)
}

// GetAccount returns one account by ID.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// ListAccounts returns sanitized views of all accounts in creation order.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.AccountView, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, accounts[i].View())
	}
	return views, nil
}

// settle moves a journal entry out of pending and publishes the outcome. A
// settlement failure is logged rather than propagated: the balance mutation
// has already happened (or not), and the entry stays pending for operator
// reconciliation.
func (s *Service) settle(ctx context.Context, entry *domain.Transaction, status domain.TransactionStatus) *domain.Transaction {
	settled, err := s.repo.UpdateTransactionStatus(ctx, entry.TransactionID, status)
	if err != nil {
		log.Printf("level=error component=ledger msg=\"failed to settle journal entry\" transaction_id=%d status=%s err=%v", entry.TransactionID, status, err)
		return entry
	}

	if s.eventProducer != nil {
		event := rabbitmq.TransactionEvent{
			EventID:       uuid.New(),
			TransactionID: settled.TransactionID,
			AccountID:     settled.AccountID,
			Type:          string(settled.Type),
			Status:        string(settled.Status),
			Amount:        settled.Amount,
			Currency:      settled.Currency,
			Timestamp:     time.Now().UTC(),
		}
		if err := s.eventProducer.PublishTransactionEvent(ctx, event); err != nil {
			log.Printf("level=warn component=ledger msg=\"transaction event publish failed\" transaction_id=%d err=%v", settled.TransactionID, err)
		}
	}
	return settled
}

func (s *Service) recordMetrics(txType domain.TransactionType, start time.Time, success bool) {
	if s.collector != nil {
		s.collector.RecordTransaction(string(txType), time.Since(start), success)
	}
}

// normalizeCurrency upper-cases and validates a three-letter ISO currency
// code.
func normalizeCurrency(raw string) (string, bool) {
	if len(raw) != 3 {
		return "", false
	}
	out := make([]byte, 3)
	for i := 0; i < 3; i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - ('a' - 'A')
		case c >= 'A' && c <= 'Z':
			out[i] = c
		default:
			return "", false
		}
	}
	return string(out), true
}

func validEmail(email string) bool {
	at := -1
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			if at != -1 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(email)-1
}
