package payment

import "time"

// Kind is the instrument type of a stored payment method
type Kind string

// Only KindCard is charged by the renewal batch
const (
	KindCard Kind = "card"
	KindSEPA Kind = "sepa_debit"
)

// Method is a stored payment instrument. It is managed by the payment methods screens and read-only here
type Method struct {
	ID        string    `json:"id" gorm:"primaryKey"`         // Corresponds to Stripe's PaymentMethod ID
	UserID    string    `json:"userId" gorm:"index;not null"` // Corresponds to Stripe's Customer ID
	Kind      Kind      `json:"kind" gorm:"not null"`
	Brand     string    `json:"brand"`
	Last4     string    `json:"last4"`
	IsDefault bool      `json:"isDefault" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt"`
}
