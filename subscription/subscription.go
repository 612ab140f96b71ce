package subscription

import "time"

// Subscription describes a recurring plan purchase of a dashboard user
type Subscription struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	UserID             string    `json:"userId" gorm:"index;not null"`    // Corresponds to Stripe's Customer ID
	Email              string    `json:"email"`                           // Denormalized for notifications
	PlanID             string    `json:"planId" gorm:"not null"`          // Key into the plan Catalog
	Cycle              Cycle     `json:"cycle" gorm:"not null"`           // monthly or yearly
	State              State     `json:"state" gorm:"index;not null"`     // See const.go
	CurrentPeriodStart time.Time `json:"currentPeriodStart" gorm:"not null"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd" gorm:"index;not null"`
	BillingAnchorDay   int       `json:"billingAnchorDay"` // Day-of-month renewals aim for. 0 means the day of CurrentPeriodEnd

	// LastRenewalAttemptOn is the YYYY-MM-DD of the last batch that claimed this subscription for renewal
	LastRenewalAttemptOn string `json:"lastRenewalAttemptOn"`
	// RemindedForPeriodEnd is the YYYY-MM-DD period end a reminder was last sent for
	RemindedForPeriodEnd string `json:"remindedForPeriodEnd"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AnchorDay returns the day-of-month renewals should land on
func (s *Subscription) AnchorDay() int {
	if s.BillingAnchorDay > 0 {
		return s.BillingAnchorDay
	}
	return s.CurrentPeriodEnd.Day()
}

// Reminded reports whether a reminder was already sent for the current period
func (s *Subscription) Reminded() bool {
	return s.RemindedForPeriodEnd == s.CurrentPeriodEnd.UTC().Format(dateLayout)
}
