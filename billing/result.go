package billing

import "time"

// Counts are the per-phase tallies of one batch run
type Counts struct {
	RemindersSent     int      `json:"reminders_sent"`
	RenewalsProcessed int      `json:"renewals_processed"` // successful renewals only
	RenewalsFailed    int      `json:"renewals_failed"`    // subscriptions moved to (or left in) payment_failed
	ExpiredMarked     int64    `json:"expired_marked"`
	Errors            []string `json:"errors"`
}

// Result is what a batch run reports to its trigger
type Result struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Results   Counts    `json:"results"`
	Error     string    `json:"error,omitempty"`
}

// Status is a read-only snapshot for dashboards
type Status struct {
	Timestamp           time.Time `json:"timestamp"`
	Active              int64     `json:"active"`
	ExpiringToday       int64     `json:"expiring_today"`
	ExpiringWithin3Days int64     `json:"expiring_within_3_days"`
	PaymentFailed       int64     `json:"payment_failed"`
}

func newResult(now time.Time) *Result {
	return &Result{
		Timestamp: now.UTC(),
		Results: Counts{
			Errors: make([]string, 0),
		},
	}
}

func (r *Result) fail(err error) *Result {
	r.Success = false
	r.Error = err.Error()
	return r
}
