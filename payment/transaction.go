package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies what a Transaction was charged for
type TransactionType string

const (
	TypeSubscriptionFee TransactionType = "subscription_fee"
)

// TransactionStatus is the outcome of one charge attempt
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only record of one charge attempt against one instrument
type Transaction struct {
	ID              string            `json:"id" gorm:"primaryKey"`
	UserID          string            `json:"userId" gorm:"index;not null"`
	SubscriptionID  string            `json:"subscriptionId" gorm:"index"`
	Type            TransactionType   `json:"type" gorm:"not null"`
	Amount          decimal.Decimal   `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency        string            `json:"currency" gorm:"size:3;not null"`
	Description     string            `json:"description"`
	Status          TransactionStatus `json:"status" gorm:"index;not null"`
	PaymentMethodID string            `json:"paymentMethodId"`
	Reference       string            `json:"reference"`     // Gateway reference of a completed charge
	FailureReason   string            `json:"failureReason"` // Gateway's stated error of a failed charge
	CreatedAt       time.Time         `json:"createdAt"`
}
