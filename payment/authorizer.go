package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest is one attempt to charge one instrument
type ChargeRequest struct {
	MethodID    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	UserID      string
	// IdempotencyKey lets the gateway collapse retries of the same attempt
	IdempotencyKey string
}

// Result is the gateway's answer to a ChargeRequest. A decline is Success == false with Error set
type Result struct {
	Success   bool
	Reference string
	Error     string
}

// Authorizer charges a single instrument. The returned error is reserved for
// transport or configuration faults; declines are reported through Result
type Authorizer interface {
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
}
