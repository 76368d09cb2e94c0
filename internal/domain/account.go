/**
 * @description
 * This file defines the account domain model and the request/response structs
 * for account-related operations. Balances are stored as int64 in the smallest
 * currency unit (minor units) to avoid floating-point inaccuracies with
 * financial data.
 *
 * @notes
 * - The password hash never leaves the service: `Account` is the internal
 *   model, `AccountView` is the sanitized projection returned to callers.
 */

package domain

import "time"

// AccountType classifies the kind of account a customer holds.
type AccountType string

const (
	SavingsAccount  AccountType = "savings"
	CheckingAccount AccountType = "checking"
)

// Account represents a customer account with its credentials, profile and
// current balance. It maps directly to the `accounts` table.
type Account struct {
	AccountID    int64       `json:"account_id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	AccountType  AccountType `json:"account_type"`
	Balance      int64       `json:"balance"` // in minor units
	Currency     string      `json:"currency"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	IsActive     bool        `json:"is_active"`
	IsAdmin      bool        `json:"is_admin"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AccountView is the read-optimised projection of an account. It never exposes
// the password hash and is safe to serialise to API responses.
type AccountView struct {
	AccountID   int64       `json:"account_id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	AccountType AccountType `json:"account_type"`
	Balance     int64       `json:"balance"`
	Currency    string      `json:"currency"`
	Phone       string      `json:"phone,omitempty"`
	Address     string      `json:"address,omitempty"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// View returns the sanitized projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		AccountID:   a.AccountID,
		Username:    a.Username,
		Email:       a.Email,
		AccountType: a.AccountType,
		Balance:     a.Balance,
		Currency:    a.Currency,
		Phone:       a.Phone,
		Address:     a.Address,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
	}
}

// RegisterRequest is the DTO for account registration.
type RegisterRequest struct {
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	AccountType AccountType `json:"account_type"`
	Currency    string      `json:"currency"`
	Phone       string      `json:"phone"`
	Address     string      `json:"address"`
}

// LoginRequest is the DTO for credential authentication.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token back to the client.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DepositRequest is the DTO for deposits into an account.
type DepositRequest struct {
	AccountID   int64  `json:"account_id"`
	Amount      int64  `json:"amount"` // in minor units
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// WithdrawRequest is the DTO for withdrawals from an account.
type WithdrawRequest struct {
	AccountID   int64  `json:"account_id"`
	Amount      int64  `json:"amount"` // in minor units
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// TransferRequest is the DTO for transfers between two accounts.
type TransferRequest struct {
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	Amount        int64  `json:"amount"` // in minor units
	Currency      string `json:"currency"`
	Description   string `json:"description"`
}

// AccountBalance is the read-only balance projection for an account.
type AccountBalance struct {
	AccountID int64  `json:"account_id"`
	Balance   int64  `json:"balance"` // in minor units
	Currency  string `json:"currency"`
}
