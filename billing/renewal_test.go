package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/payment"
	"github.com/zllovesuki/adbill/subscription"
)

func TestRenewFallsBackToSecondCard(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("visa", "cus_s1", true, 1, "4242"),
		newCard("mc", "cus_s1", false, 2, "1111"),
	}, "mc")

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, renewal.Outcome)
	assert.Equal(t, 2, renewal.Attempts)
	require.NotNil(t, renewal.Method)
	assert.Equal(t, "mc", renewal.Method.ID)

	assert.Equal(t, []string{"visa", "mc"}, f.authorizer.charged())

	failed := f.payments.transactions("s1", payment.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "visa", failed[0].PaymentMethodID)
	assert.Equal(t, "Your card was declined.", failed[0].FailureReason)

	completed := f.payments.transactions("s1", payment.StatusCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "mc", completed[0].PaymentMethodID)
	assert.True(t, decimal.RequireFromString("99").Equal(completed[0].Amount))
	assert.Equal(t, "usd", completed[0].Currency)
	assert.Equal(t, "pi_mc", completed[0].Reference)
	assert.Equal(t, payment.TypeSubscriptionFee, completed[0].Type)

	got := f.subs.get("s1")
	assert.Equal(t, subscription.StateActive, got.State)
	assert.True(t, got.CurrentPeriodStart.Equal(day(0)))
	// 2025-01-31 monthly lands on the last day of February
	assert.True(t, got.CurrentPeriodEnd.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)), got.CurrentPeriodEnd)

	confirmations := f.dispatcher.ofTemplate(notification.TemplateRenewalConfirmation)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "s1@example.com", confirmations[0].Recipient)
	assert.Equal(t, "Pro", confirmations[0].Data["plan_name"])
	assert.Equal(t, "99.00", confirmations[0].Data["amount"])
	assert.Equal(t, "USD", confirmations[0].Data["currency"])
	assert.Equal(t, "monthly", confirmations[0].Data["cycle"])
	assert.Equal(t, "1111", confirmations[0].Data["last4"])
	assert.Equal(t, "February 28, 2025", confirmations[0].Data["next_renewal_date"])
}

func TestRenewStopsAtFirstSuccess(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 3, "0001"),
		newCard("b", "cus_s1", false, 1, "0002"),
		newCard("c", "cus_s1", false, 2, "0003"),
	}, "a", "b", "c")

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, renewal.Outcome)
	assert.Equal(t, []string{"a"}, f.authorizer.charged())
	assert.Len(t, f.payments.transactions("s1", payment.StatusCompleted), 1)
	assert.Len(t, f.payments.transactions("s1", payment.StatusFailed), 0)
}

func TestRenewWithoutCards(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s2", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		// a SEPA mandate is not a card
		{ID: "sepa", UserID: "cus_s2", Kind: payment.KindSEPA, IsDefault: true},
	})

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, renewal.Outcome)
	assert.Equal(t, 0, renewal.Attempts)

	assert.Empty(t, f.authorizer.charged())
	assert.Empty(t, f.payments.txs)
	assert.Equal(t, subscription.StatePaymentFailed, f.subs.get("s2").State)

	notices := f.dispatcher.ofTemplate(notification.TemplatePaymentFailed)
	require.Len(t, notices, 1)
	assert.Equal(t, 0, notices[0].Data["cards_attempted"])
	assert.Equal(t, "99.00", notices[0].Data["amount"])
}

func TestRenewExhaustsEveryCard(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	methods := []payment.Method{
		newCard("a", "cus_s1", false, 1, "0001"),
		newCard("b", "cus_s1", true, 2, "0002"),
		newCard("c", "cus_s1", false, 3, "0003"),
	}
	f := newFixture(t, []subscription.Subscription{sub}, methods)

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, renewal.Outcome)
	assert.Equal(t, 3, renewal.Attempts)

	assert.Equal(t, []string{"b", "a", "c"}, f.authorizer.charged())
	assert.Len(t, f.payments.transactions("s1", payment.StatusFailed), len(methods))
	assert.Empty(t, f.payments.transactions("s1", payment.StatusCompleted))
	assert.Equal(t, subscription.StatePaymentFailed, f.subs.get("s1").State)
	assert.True(t, f.subs.get("s1").CurrentPeriodEnd.Equal(day(0)))

	notices := f.dispatcher.ofTemplate(notification.TemplatePaymentFailed)
	require.Len(t, notices, 1)
	assert.Equal(t, 3, notices[0].Data["cards_attempted"])
}

func TestRenewTreatsAuthorizerFaultAsDecline(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
		newCard("b", "cus_s1", false, 2, "0002"),
	}, "b")
	f.authorizer.faults["a"] = errors.New("connection reset by peer")

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, renewal.Outcome)

	failed := f.payments.transactions("s1", payment.StatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].FailureReason, "connection reset")
}

func TestRenewUnknownPlan(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	sub.PlanID = "enterprise"
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
	}, "a")

	_, err := f.processor.Renew(ctx, sub, f.window())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPlan))

	assert.Empty(t, f.authorizer.charged())
	assert.Empty(t, f.payments.txs)
	assert.Empty(t, f.dispatcher.sent)
	got := f.subs.get("s1")
	assert.Equal(t, subscription.StateActive, got.State)
	assert.Empty(t, got.LastRenewalAttemptOn)
}

func TestRenewClaimsOncePerDay(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
	})

	first, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, first.Outcome)

	// a second trigger on the same day sees the stale record but cannot charge again
	second, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, []string{"a"}, f.authorizer.charged())
}

func TestRenewIdempotencyKeyPerCard(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
		newCard("b", "cus_s1", false, 2, "0002"),
	})

	_, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	require.Len(t, f.authorizer.calls, 2)
	assert.Equal(t, "renewal:s1:2025-01-31:a", f.authorizer.calls[0].IdempotencyKey)
	assert.Equal(t, "renewal:s1:2025-01-31:b", f.authorizer.calls[1].IdempotencyKey)
	assert.Equal(t, "Pro plan renewal (monthly)", f.authorizer.calls[0].Description)
	assert.Equal(t, "cus_s1", f.authorizer.calls[0].UserID)
}

func TestRenewDunningRecovery(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StatePaymentFailed, day(-2))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
	}, "a")

	due, err := f.processor.Due(ctx, f.window(), 3)
	require.NoError(t, err)
	require.Len(t, due, 1)

	renewal, err := f.processor.Renew(ctx, due[0], f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, renewal.Outcome)

	got := f.subs.get("s1")
	assert.Equal(t, subscription.StateActive, got.State)
	// the new period continues from the missed boundary, Jan 29 clamps to Feb 28
	assert.True(t, got.CurrentPeriodStart.Equal(day(-2)))
	assert.True(t, got.CurrentPeriodEnd.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)), got.CurrentPeriodEnd)
}

func TestRenewDunningFailureStaysQuiet(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StatePaymentFailed, day(-1))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
	})

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, renewal.Outcome)
	assert.Empty(t, f.dispatcher.ofTemplate(notification.TemplatePaymentFailed))
}

func TestDueSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []subscription.Subscription{
		newSub("today", subscription.StateActive, day(0).Add(15*time.Hour)),
		newSub("tomorrow", subscription.StateActive, day(1)),
		newSub("yesterday", subscription.StateActive, day(-1)),
		newSub("canceled", subscription.StateCanceled, day(0)),
		newSub("retry", subscription.StatePaymentFailed, day(-3)),
		newSub("too-late", subscription.StatePaymentFailed, day(-4)),
	}, nil)

	due, err := f.processor.Due(ctx, f.window(), 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, sub := range due {
		ids = append(ids, sub.ID)
	}
	assert.ElementsMatch(t, []string{"today", "retry"}, ids)

	due, err = f.processor.Due(ctx, f.window(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "today", due[0].ID)
}

func TestRenewRecordsNotificationFailure(t *testing.T) {
	ctx := context.Background()
	sub := newSub("s1", subscription.StateActive, day(0))
	f := newFixture(t, []subscription.Subscription{sub}, []payment.Method{
		newCard("a", "cus_s1", true, 1, "0001"),
	}, "a")
	f.dispatcher.err = fmt.Errorf("broker unavailable")

	renewal, err := f.processor.Renew(ctx, sub, f.window())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	// the charge went through, the renewal stands
	assert.Equal(t, OutcomeRenewed, renewal.Outcome)
	assert.Equal(t, subscription.StateActive, f.subs.get("s1").State)
	assert.True(t, f.subs.get("s1").CurrentPeriodEnd.After(day(0)))
}

func TestNewProcessorValidation(t *testing.T) {
	_, err := NewProcessor(ProcessorOptions{})
	require.Error(t, err)
}
