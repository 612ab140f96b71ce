package notification

import (
	"context"
	"time"
)

// Template selects the subscriber-facing message to render
type Template string

const (
	TemplateRenewalReminder     Template = "renewal_reminder"
	TemplateRenewalConfirmation Template = "renewal_confirmation"
	TemplatePaymentFailed       Template = "payment_failed"
)

// Data carries the template variables. Values must be strings, numbers or booleans
type Data map[string]interface{}

// Message is one notification addressed to one recipient
type Message struct {
	Recipient string
	Template  Template
	Data      Data
	CreatedAt time.Time
}

// Dispatcher delivers notifications on a best-effort basis
type Dispatcher interface {
	Send(ctx context.Context, recipient string, template Template, data Data) error
}
