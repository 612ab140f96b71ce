package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// reminder lead times in days, inclusive
const (
	minReminderDays = 1
	maxReminderDays = 3
)

type ReminderSchedulerOptions struct {
	Subscriptions SubscriptionStore
	Catalog       PlanCatalog
	Dispatcher    notification.Dispatcher
	Logger        *zap.Logger
	CallTimeout   time.Duration
}

// ReminderScheduler tells active subscribers that a renewal is coming up
type ReminderScheduler struct {
	ReminderSchedulerOptions
}

func NewReminderScheduler(option ReminderSchedulerOptions) (*ReminderScheduler, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil SubscriptionStore is invalid")
	}
	if option.Catalog == nil {
		return nil, fmt.Errorf("nil PlanCatalog is invalid")
	}
	if option.Dispatcher == nil {
		return nil, fmt.Errorf("nil Dispatcher is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &ReminderScheduler{
		ReminderSchedulerOptions: option,
	}, nil
}

// Due lists active subscriptions whose period ends within the reminder window of w
func (r *ReminderScheduler) Due(ctx context.Context, w subscription.Window) ([]subscription.Subscription, error) {
	subs, err := r.Subscriptions.List(ctx, subscription.ListOption{
		States:    []subscription.State{subscription.StateActive},
		EndFrom:   w.Today,
		EndBefore: w.ReminderUntil,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot list subscriptions due for a reminder")
	}
	return subs, nil
}

// Remind sends the renewal reminder for sub. It reports false without error when
// sub is outside the 1..3 day window or was already reminded for this period.
func (r *ReminderScheduler) Remind(ctx context.Context, sub subscription.Subscription, w subscription.Window) (bool, error) {
	days := w.DaysUntil(sub.CurrentPeriodEnd)
	if days < minReminderDays || days > maxReminderDays {
		return false, nil
	}
	if sub.Reminded() {
		return false, nil
	}

	plan, price, ok := r.Catalog.Lookup(sub.PlanID, sub.Cycle)
	if !ok {
		return false, extErrors.Wrapf(ErrUnknownPlan, "plan %q (%s)", sub.PlanID, sub.Cycle)
	}
	if err := validateEmail(sub.Email); err != nil {
		return false, err
	}

	callCtx, cancel := withTimeout(ctx, r.CallTimeout)
	defer cancel()
	if err := r.Dispatcher.Send(callCtx, sub.Email, notification.TemplateRenewalReminder, notification.Data{
		"plan_name":      plan.Name,
		"renewal_date":   sub.CurrentPeriodEnd.In(w.Location).Format(displayDate),
		"days_remaining": days,
		"amount":         price.StringFixed(2),
		"currency":       currencyLabel(plan.Currency),
	}); err != nil {
		return false, extErrors.Wrap(err, "Cannot send renewal reminder")
	}

	if err := r.Subscriptions.MarkReminded(ctx, sub.ID, sub.CurrentPeriodEnd); err != nil {
		// the reminder did go out, count it
		return true, err
	}

	r.Logger.Debug("Renewal reminder sent",
		zap.String("SubscriptionID", sub.ID),
		zap.Int("DaysRemaining", days),
	)
	return true, nil
}
