/**
 * @description
 * This file defines the transaction journal domain model. The journal is
 * append-only: a transaction is created once per monetary event and the only
 * permitted mutation is the status transition out of `pending`.
 *
 * @notes
 * - Amounts are always strictly positive; direction is encoded by the
 *   transaction type, never by the sign of the amount.
 * - The two legs of a transfer reference each other through
 *   LinkedTransactionID.
 */

package domain

import "time"

// TransactionType encodes the direction and nature of a journal entry.
type TransactionType string

const (
	TransactionDeposit     TransactionType = "deposit"
	TransactionWithdrawal  TransactionType = "withdrawal"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
)

// TransactionStatus is the lifecycle state of a journal entry.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
)

// ValidTransition reports whether a journal entry may move from one status to
// another. Only pending entries may change state.
func ValidTransition(from, to TransactionStatus) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusCompleted || to == StatusFailed
}

// Transaction represents a single journal entry for a monetary event against
// one account. It maps directly to the `transactions` table.
type Transaction struct {
	TransactionID       int64             `json:"transaction_id"`
	AccountID           int64             `json:"account_id"`
	Type                TransactionType   `json:"type"`
	Amount              int64             `json:"amount"` // in minor units
	Currency            string            `json:"currency"`
	Status              TransactionStatus `json:"status"`
	Description         string            `json:"description"`
	LinkedTransactionID *int64            `json:"linked_transaction_id,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
