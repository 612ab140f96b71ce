package billing

import (
	"context"
	"time"

	"github.com/zllovesuki/adbill/payment"
	"github.com/zllovesuki/adbill/subscription"

	"github.com/shopspring/decimal"
)

// SubscriptionStore is the persistence the batch needs for subscriptions, see subscription.Manager
type SubscriptionStore interface {
	List(ctx context.Context, opt subscription.ListOption) ([]subscription.Subscription, error)
	Count(ctx context.Context, opt subscription.ListOption) (int64, error)
	ClaimRenewal(ctx context.Context, id, day string) (bool, error)
	ExtendPeriod(ctx context.Context, id string, start, end time.Time, anchorDay int) error
	UpdateState(ctx context.Context, id string, state subscription.State) error
	MarkReminded(ctx context.Context, id string, periodEnd time.Time) error
	Expire(ctx context.Context, state subscription.State, endBefore time.Time) (int64, error)
}

// PaymentStore reads instruments and appends transactions, see payment.Manager
type PaymentStore interface {
	ListMethods(ctx context.Context, userID string) ([]payment.Method, error)
	RecordTransaction(ctx context.Context, tx *payment.Transaction) error
}

// PlanCatalog is the plan-price table, see subscription.Catalog
type PlanCatalog interface {
	Lookup(planID string, cycle subscription.Cycle) (subscription.Plan, decimal.Decimal, bool)
}

// RunLock keeps two batch runs for the same day from overlapping, see lock.Redis
type RunLock interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

var (
	_ SubscriptionStore = &subscription.Manager{}
	_ PaymentStore      = &payment.Manager{}
	_ PlanCatalog       = &subscription.Catalog{}
)
