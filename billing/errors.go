package billing

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate = validator.New()

var (
	// ErrUnknownPlan means the subscription references a plan/cycle missing from the catalog. Nothing is charged
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrNoEmail means the subscriber has no deliverable email address
	ErrNoEmail = errors.New("subscriber has no valid email")
	// ErrRunInProgress means another batch run holds the run lock
	ErrRunInProgress = errors.New("billing run already in progress")
)

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return ErrNoEmail
	}
	return nil
}

// withTimeout bounds a single external call. A zero timeout leaves ctx unchanged
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

const displayDate = "January 2, 2006"
