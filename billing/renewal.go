package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/payment"
	"github.com/zllovesuki/adbill/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Outcome is the terminal result of processing one due subscription
type Outcome string

const (
	// OutcomeRenewed means one card was charged and the period was extended
	OutcomeRenewed Outcome = "renewed"
	// OutcomeFailed means every card was declined (or there were none) and the subscription is payment_failed
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means another run already claimed the subscription today
	OutcomeSkipped Outcome = "skipped"
)

// Renewal reports what Processor.Renew did with one subscription
type Renewal struct {
	Outcome      Outcome
	Attempts     int
	Method       *payment.Method
	NewPeriodEnd time.Time
}

type ProcessorOptions struct {
	Subscriptions SubscriptionStore
	Payments      PaymentStore
	Catalog       PlanCatalog
	Authorizer    payment.Authorizer
	Dispatcher    notification.Dispatcher
	Logger        *zap.Logger
	CallTimeout   time.Duration
}

// Processor renews due subscriptions, falling back across the user's saved cards
type Processor struct {
	ProcessorOptions
}

func NewProcessor(option ProcessorOptions) (*Processor, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil SubscriptionStore is invalid")
	}
	if option.Payments == nil {
		return nil, fmt.Errorf("nil PaymentStore is invalid")
	}
	if option.Catalog == nil {
		return nil, fmt.Errorf("nil PlanCatalog is invalid")
	}
	if option.Authorizer == nil {
		return nil, fmt.Errorf("nil Authorizer is invalid")
	}
	if option.Dispatcher == nil {
		return nil, fmt.Errorf("nil Dispatcher is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Processor{
		ProcessorOptions: option,
	}, nil
}

// Due lists the subscriptions a run on w should attempt: active ones ending today,
// plus payment_failed ones still inside the grace period
func (p *Processor) Due(ctx context.Context, w subscription.Window, graceDays int) ([]subscription.Subscription, error) {
	due, err := p.Subscriptions.List(ctx, subscription.ListOption{
		States:    []subscription.State{subscription.StateActive},
		EndFrom:   w.Today,
		EndBefore: w.Tomorrow,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot list subscriptions due for renewal")
	}
	if graceDays <= 0 {
		return due, nil
	}
	dunning, err := p.Subscriptions.List(ctx, subscription.ListOption{
		States:    []subscription.State{subscription.StatePaymentFailed},
		EndFrom:   w.GraceStart(graceDays),
		EndBefore: w.Tomorrow,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot list subscriptions in grace period")
	}
	return append(due, dunning...), nil
}

// Renew attempts to charge sub for its next period. The returned error may accompany
// a terminal Outcome when a bookkeeping step failed after the charge decision was made.
func (p *Processor) Renew(ctx context.Context, sub subscription.Subscription, w subscription.Window) (Renewal, error) {
	logger := p.Logger.With(
		zap.String("SubscriptionID", sub.ID),
		zap.String("UserID", sub.UserID),
	)

	plan, price, ok := p.Catalog.Lookup(sub.PlanID, sub.Cycle)
	if !ok {
		logger.Error("Subscription references an unknown plan",
			zap.String("PlanID", sub.PlanID),
			zap.String("Cycle", string(sub.Cycle)),
		)
		return Renewal{}, extErrors.Wrapf(ErrUnknownPlan, "plan %q (%s)", sub.PlanID, sub.Cycle)
	}

	methods, err := p.Payments.ListMethods(ctx, sub.UserID)
	if err != nil {
		return Renewal{}, extErrors.Wrap(err, "Cannot load payment methods")
	}
	cards := payment.OrderCards(methods)

	claimed, err := p.Subscriptions.ClaimRenewal(ctx, sub.ID, w.Date())
	if err != nil {
		return Renewal{}, err
	}
	if !claimed {
		logger.Info("Subscription already claimed for renewal today, skipping")
		return Renewal{Outcome: OutcomeSkipped}, nil
	}

	var errs []error
	description := fmt.Sprintf("%s plan renewal (%s)", plan.Name, sub.Cycle)
	periodKey := sub.CurrentPeriodEnd.UTC().Format("2006-01-02")

	for i := range cards {
		card := cards[i]
		result, err := p.charge(ctx, payment.ChargeRequest{
			MethodID:       card.ID,
			Amount:         price,
			Currency:       plan.Currency,
			Description:    description,
			UserID:         sub.UserID,
			IdempotencyKey: fmt.Sprintf("renewal:%s:%s:%s", sub.ID, periodKey, card.ID),
		})
		if err != nil {
			logger.Error("Authorizer returned an error, trying the next card",
				zap.String("MethodID", card.ID),
				zap.Error(err),
			)
			result = payment.Result{Success: false, Error: err.Error()}
		}

		tx := &payment.Transaction{
			UserID:          sub.UserID,
			SubscriptionID:  sub.ID,
			Type:            payment.TypeSubscriptionFee,
			Amount:          price,
			Currency:        plan.Currency,
			Description:     description,
			PaymentMethodID: card.ID,
		}

		if !result.Success {
			tx.Status = payment.StatusFailed
			tx.FailureReason = result.Error
			if err := p.Payments.RecordTransaction(ctx, tx); err != nil {
				errs = append(errs, err)
			}
			logger.Info("Card declined",
				zap.String("MethodID", card.ID),
				zap.String("Reason", result.Error),
			)
			continue
		}

		tx.Status = payment.StatusCompleted
		tx.Reference = result.Reference
		if err := p.Payments.RecordTransaction(ctx, tx); err != nil {
			logger.Error("Charge succeeded but the transaction could not be recorded",
				zap.String("MethodID", card.ID),
				zap.String("Reference", result.Reference),
				zap.Error(err),
			)
			errs = append(errs, err)
		}

		nextEnd, err := subscription.NextPeriodEnd(sub.CurrentPeriodEnd, sub.Cycle, sub.AnchorDay())
		if err != nil {
			errs = append(errs, err)
			return Renewal{Outcome: OutcomeRenewed, Attempts: i + 1, Method: &card}, errors.Join(errs...)
		}
		if err := p.Subscriptions.ExtendPeriod(ctx, sub.ID, sub.CurrentPeriodEnd, nextEnd, sub.AnchorDay()); err != nil {
			errs = append(errs, err)
			return Renewal{Outcome: OutcomeRenewed, Attempts: i + 1, Method: &card}, errors.Join(errs...)
		}
		logger.Info("Subscription renewed",
			zap.String("MethodID", card.ID),
			zap.Int("Attempts", i+1),
			zap.Time("NextPeriodEnd", nextEnd),
		)

		if err := p.notify(ctx, sub.Email, notification.TemplateRenewalConfirmation, notification.Data{
			"plan_name":         plan.Name,
			"cycle":             string(sub.Cycle),
			"amount":            price.StringFixed(2),
			"currency":          currencyLabel(plan.Currency),
			"last4":             card.Last4,
			"next_renewal_date": nextEnd.In(w.Location).Format(displayDate),
		}); err != nil {
			errs = append(errs, extErrors.Wrap(err, "Cannot send renewal confirmation"))
		}

		return Renewal{
			Outcome:      OutcomeRenewed,
			Attempts:     i + 1,
			Method:       &card,
			NewPeriodEnd: nextEnd,
		}, errors.Join(errs...)
	}

	// every card declined, or the user has none
	if err := p.Subscriptions.UpdateState(ctx, sub.ID, subscription.StatePaymentFailed); err != nil {
		errs = append(errs, err)
		return Renewal{Outcome: OutcomeFailed, Attempts: len(cards)}, errors.Join(errs...)
	}
	logger.Info("Renewal failed on every card",
		zap.Int("Attempts", len(cards)),
	)

	// dunning retries stay quiet, the user was told on the first failure
	if sub.State == subscription.StateActive {
		if err := p.notify(ctx, sub.Email, notification.TemplatePaymentFailed, notification.Data{
			"plan_name":       plan.Name,
			"amount":          price.StringFixed(2),
			"currency":        currencyLabel(plan.Currency),
			"cards_attempted": len(cards),
		}); err != nil {
			errs = append(errs, extErrors.Wrap(err, "Cannot send payment failure notice"))
		}
	}

	return Renewal{Outcome: OutcomeFailed, Attempts: len(cards)}, errors.Join(errs...)
}

func (p *Processor) charge(ctx context.Context, req payment.ChargeRequest) (payment.Result, error) {
	callCtx, cancel := withTimeout(ctx, p.CallTimeout)
	defer cancel()
	return p.Authorizer.Charge(callCtx, req)
}

func (p *Processor) notify(ctx context.Context, email string, template notification.Template, data notification.Data) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	callCtx, cancel := withTimeout(ctx, p.CallTimeout)
	defer cancel()
	return p.Dispatcher.Send(callCtx, email, template, data)
}

func currencyLabel(currency string) string {
	return strings.ToUpper(currency)
}
