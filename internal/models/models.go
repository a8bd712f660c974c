package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTransfer   TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionTransfer:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status can no longer change.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Wallet struct {
	ID           string
	UserID       string
	WalletNumber string
	Balance      decimal.Decimal
	Currency     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Transaction struct {
	ID                string
	WalletID          string
	Amount            decimal.Decimal
	Type              TransactionType
	Status            TransactionStatus
	RecipientWalletID *string
	Description       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Touches reports whether walletID is the subject or the recipient of the transaction.
func (t Transaction) Touches(walletID string) bool {
	if t.WalletID == walletID {
		return true
	}
	return t.RecipientWalletID != nil && *t.RecipientWalletID == walletID
}

type AuditEntry struct {
	ID          string            `json:"id"`
	ActorUserID *string           `json:"actorUserId,omitempty"`
	Action      string            `json:"action"`
	EntityType  string            `json:"entityType"`
	EntityID    string            `json:"entityId"`
	Data        map[string]string `json:"data"`
	CreatedAt   time.Time         `json:"createdAt"`
}
