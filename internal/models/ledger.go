package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

type TransactionType string

const (
	TransactionIncome   TransactionType = "INCOME"
	TransactionExpense  TransactionType = "EXPENSE"
	TransactionTransfer TransactionType = "TRANSFER"
)

// Transaction is an immutable ledger row. Amount is never negative; the
// direction is carried by Type.
type Transaction struct {
	ID          int64           `json:"id"`
	Reference   uuid.UUID       `json:"reference"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	AccountID   int64           `json:"account_id"`
	BookingID   *int64          `json:"booking_id,omitempty"`
	RecipientID *int64          `json:"recipient_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Staff struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	CommissionRate *float64  `json:"commission_rate,omitempty"` // percent; nil means unset
	CreatedAt      time.Time `json:"created_at"`
}
