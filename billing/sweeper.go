package billing

import (
	"context"
	"fmt"

	"github.com/zllovesuki/adbill/subscription"

	"go.uber.org/zap"
)

type SweeperOptions struct {
	Subscriptions SubscriptionStore
	Logger        *zap.Logger
}

// Sweeper expires subscriptions whose period lapsed without a renewal
type Sweeper struct {
	SweeperOptions
}

func NewSweeper(option SweeperOptions) (*Sweeper, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil SubscriptionStore is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Sweeper{
		SweeperOptions: option,
	}, nil
}

// Sweep marks active subscriptions that ended before yesterday, and payment_failed ones
// that ended more than graceDays before yesterday, as expired. It returns the number of rows changed.
// Running it twice on the same day changes nothing the second time.
func (s *Sweeper) Sweep(ctx context.Context, w subscription.Window, graceDays int) (int64, error) {
	if graceDays < 0 {
		graceDays = 0
	}

	lapsed, err := s.Subscriptions.Expire(ctx, subscription.StateActive, w.Yesterday)
	if err != nil {
		return 0, err
	}

	unpaid, err := s.Subscriptions.Expire(ctx, subscription.StatePaymentFailed, w.Yesterday.AddDate(0, 0, -graceDays))
	if err != nil {
		return lapsed, err
	}

	if lapsed+unpaid > 0 {
		s.Logger.Info("Expired subscriptions",
			zap.Int64("Lapsed", lapsed),
			zap.Int64("Unpaid", unpaid),
		)
	}
	return lapsed + unpaid, nil
}
