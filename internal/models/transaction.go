package models

import "time"

// Transaction status constants
const (
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusFailed    = "failed"
)

// Normalized gateway status constants
const (
	GatewayStatusPending = "pending"
	GatewayStatusSuccess = "success"
	GatewayStatusFailed  = "failed"
)

// Transaction records one MPESA payment attempt for a data package.
// TransactionID is the gateway-facing idempotency key; status only ever
// moves pending -> completed or pending -> failed.
type Transaction struct {
	ID            string
	UserID        string
	PackageID     string
	Amount        float64
	TransactionID string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether the transaction has reached a final status
func (t *Transaction) IsTerminal() bool {
	return t.Status == TxnStatusCompleted || t.Status == TxnStatusFailed
}
