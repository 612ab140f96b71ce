package billing

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/zllovesuki/adbill/lock"
	"github.com/zllovesuki/adbill/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

type OrchestratorOptions struct {
	Subscriptions SubscriptionStore
	Reminders     *ReminderScheduler
	Renewals      *Processor
	Sweeper       *Sweeper
	Lock          RunLock // optional
	Location      *time.Location
	GraceDays     int
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Orchestrator runs the daily billing batch: reminders, then renewals, then the expiry sweep
type Orchestrator struct {
	OrchestratorOptions
}

func NewOrchestrator(option OrchestratorOptions) (*Orchestrator, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil SubscriptionStore is invalid")
	}
	if option.Reminders == nil {
		return nil, fmt.Errorf("nil ReminderScheduler is invalid")
	}
	if option.Renewals == nil {
		return nil, fmt.Errorf("nil Processor is invalid")
	}
	if option.Sweeper == nil {
		return nil, fmt.Errorf("nil Sweeper is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Location == nil {
		option.Location = time.UTC
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	return &Orchestrator{
		OrchestratorOptions: option,
	}, nil
}

func (o *Orchestrator) window() subscription.Window {
	return subscription.NewWindow(o.Clock(), o.Location)
}

// Run executes one batch. It always returns a Result: phase and per-subscription
// failures land in Results.Errors, anything else in Error with Success false.
func (o *Orchestrator) Run(ctx context.Context) (result *Result) {
	w := o.window()
	result = newResult(w.Now)

	defer func() {
		if rec := recover(); rec != nil {
			o.Logger.Error("Billing run panicked",
				zap.Any("Panic", rec),
				zap.ByteString("Stack", debug.Stack()),
			)
			result.fail(fmt.Errorf("unexpected failure: %v", rec))
		}
	}()

	logger := o.Logger.With(zap.String("RunDate", w.Date()))

	if o.Lock != nil {
		release, err := o.Lock.Acquire(ctx, "run:"+w.Date())
		if err != nil {
			if extErrors.Is(err, lock.ErrHeld) {
				logger.Warn("Another billing run holds the lock, skipping")
				return result.fail(ErrRunInProgress)
			}
			logger.Error("Unable to acquire billing run lock",
				zap.Error(err),
			)
			return result.fail(extErrors.Wrap(err, "Cannot acquire run lock"))
		}
		defer release()
	}

	logger.Info("Billing run started")

	o.remind(ctx, w, result)
	o.renew(ctx, w, result)
	o.sweep(ctx, w, result)

	result.Success = true
	logger.Info("Billing run finished",
		zap.Int("RemindersSent", result.Results.RemindersSent),
		zap.Int("RenewalsProcessed", result.Results.RenewalsProcessed),
		zap.Int("RenewalsFailed", result.Results.RenewalsFailed),
		zap.Int64("ExpiredMarked", result.Results.ExpiredMarked),
		zap.Int("Errors", len(result.Results.Errors)),
	)
	return result
}

func (o *Orchestrator) remind(ctx context.Context, w subscription.Window, result *Result) {
	subs, err := o.Reminders.Due(ctx, w)
	if err != nil {
		o.record(result, "reminders", err)
		return
	}
	for _, sub := range subs {
		sent, err := o.Reminders.Remind(ctx, sub, w)
		if sent {
			result.Results.RemindersSent++
		}
		if err != nil {
			o.record(result, subscriberRef("reminder", sub), err)
		}
	}
}

func (o *Orchestrator) renew(ctx context.Context, w subscription.Window, result *Result) {
	subs, err := o.Renewals.Due(ctx, w, o.GraceDays)
	if err != nil {
		o.record(result, "renewals", err)
		return
	}
	for _, sub := range subs {
		renewal, err := o.Renewals.Renew(ctx, sub, w)
		switch renewal.Outcome {
		case OutcomeRenewed:
			result.Results.RenewalsProcessed++
		case OutcomeFailed:
			result.Results.RenewalsFailed++
		}
		if err != nil {
			o.record(result, subscriberRef("renewal", sub), err)
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context, w subscription.Window, result *Result) {
	expired, err := o.Sweeper.Sweep(ctx, w, o.GraceDays)
	result.Results.ExpiredMarked += expired
	if err != nil {
		o.record(result, "expiry", err)
	}
}

func (o *Orchestrator) record(result *Result, ref string, err error) {
	o.Logger.Error("Billing run error",
		zap.String("Ref", ref),
		zap.Error(err),
	)
	result.Results.Errors = append(result.Results.Errors, fmt.Sprintf("%s: %s", ref, err.Error()))
}

func subscriberRef(phase string, sub subscription.Subscription) string {
	if sub.Email != "" {
		return fmt.Sprintf("%s %s (%s)", phase, sub.ID, sub.Email)
	}
	return fmt.Sprintf("%s %s", phase, sub.ID)
}

// Status counts subscriptions by the same day boundaries a run would use
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	w := o.window()
	active := []subscription.State{subscription.StateActive}

	status := &Status{
		Timestamp: w.Now.UTC(),
	}
	var err error
	if status.Active, err = o.Subscriptions.Count(ctx, subscription.ListOption{
		States: active,
	}); err != nil {
		return nil, err
	}
	if status.ExpiringToday, err = o.Subscriptions.Count(ctx, subscription.ListOption{
		States:    active,
		EndFrom:   w.Today,
		EndBefore: w.Tomorrow,
	}); err != nil {
		return nil, err
	}
	if status.ExpiringWithin3Days, err = o.Subscriptions.Count(ctx, subscription.ListOption{
		States:    active,
		EndFrom:   w.Today,
		EndBefore: w.ReminderUntil,
	}); err != nil {
		return nil, err
	}
	if status.PaymentFailed, err = o.Subscriptions.Count(ctx, subscription.ListOption{
		States: []subscription.State{subscription.StatePaymentFailed},
	}); err != nil {
		return nil, err
	}
	return status, nil
}
