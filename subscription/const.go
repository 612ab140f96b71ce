package subscription

// State is the custom type to define the current state of a subscription
type State string

// Defining different States for a Subscription. StateCanceled is set outside of billing and never touched here.
const (
	StateActive        State = "active"
	StatePaymentFailed State = "payment_failed"
	StateExpired       State = "expired"
	StateCanceled      State = "canceled"
)

// Cycle is the billing frequency of a subscription
type Cycle string

// Defining supported billing cycles
const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

// Valid reports whether c is a known billing cycle
func (c Cycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// dateLayout is used for the per-day stamps stored on a subscription
const dateLayout = "2006-01-02"
