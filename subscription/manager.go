package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Subscriptions
type Manager struct {
	ManagerOptions
}

func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	if !sub.Cycle.Valid() {
		return fmt.Errorf("unknown billing cycle %q", sub.Cycle)
	}
	if sub.CurrentPeriodEnd.Before(sub.CurrentPeriodStart) {
		return fmt.Errorf("period end is before period start")
	}
	if sub.BillingAnchorDay == 0 {
		sub.BillingAnchorDay = sub.CurrentPeriodEnd.Day()
	}
	sub.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).First(&sub, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}

	return &sub, nil
}

// ListOption filters subscriptions by state and by the half-open range [EndFrom, EndBefore) of CurrentPeriodEnd.
// Zero values disable the corresponding filter.
type ListOption struct {
	States    []State
	EndFrom   time.Time
	EndBefore time.Time
	Limit     int
}

func (o ListOption) apply(query *gorm.DB) *gorm.DB {
	if len(o.States) > 0 {
		query = query.Where("state IN ?", o.States)
	}
	if !o.EndFrom.IsZero() {
		query = query.Where("current_period_end >= ?", o.EndFrom.UTC())
	}
	if !o.EndBefore.IsZero() {
		query = query.Where("current_period_end < ?", o.EndBefore.UTC())
	}
	return query
}

func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, error) {
	baseQuery := opt.apply(m.DB.WithContext(ctx).Model(&Subscription{})).
		Order("current_period_end asc").
		Order("id asc")
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list subscriptions")
	}
	return results, nil
}

func (m *Manager) Count(ctx context.Context, opt ListOption) (int64, error) {
	var count int64
	result := opt.apply(m.DB.WithContext(ctx).Model(&Subscription{})).Count(&count)
	if result.Error != nil {
		return 0, extErrors.Wrap(result.Error, "Cannot count subscriptions")
	}
	return count, nil
}

// ClaimRenewal stamps the subscription with day and reports whether this call won the claim.
// A subscription already claimed for day is not claimed again, so overlapping runs cannot charge twice.
func (m *Manager) ClaimRenewal(ctx context.Context, id, day string) (bool, error) {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", id).
		Where("(last_renewal_attempt_on IS NULL OR last_renewal_attempt_on <> ?)", day).
		Update("last_renewal_attempt_on", day)
	if result.Error != nil {
		return false, extErrors.Wrap(result.Error, "Cannot claim subscription for renewal")
	}
	return result.RowsAffected == 1, nil
}

// ExtendPeriod moves the subscription into its next period and marks it active.
// A positive anchorDay is stored so later periods keep landing on the same day of month.
func (m *Manager) ExtendPeriod(ctx context.Context, id string, start, end time.Time, anchorDay int) error {
	if end.Before(start) {
		return fmt.Errorf("period end is before period start")
	}
	updates := map[string]interface{}{
		"current_period_start": start.UTC(),
		"current_period_end":   end.UTC(),
		"state":                StateActive,
	}
	if anchorDay > 0 {
		updates["billing_anchor_day"] = anchorDay
	}
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Unable to extend subscription period in database")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

func (m *Manager) UpdateState(ctx context.Context, id string, state State) error {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Update("state", state)
	if result.Error != nil {
		return extErrors.Wrapf(result.Error, "Unable to mark subscription as %s in database", state)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

// MarkReminded records that a reminder went out for the period ending at periodEnd
func (m *Manager) MarkReminded(ctx context.Context, id string, periodEnd time.Time) error {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", id).
		Update("reminded_for_period_end", periodEnd.UTC().Format(dateLayout))
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Unable to mark subscription as reminded in database")
	}
	return nil
}

// Expire flips every subscription in state whose period ended strictly before endBefore
// to StateExpired in one statement, returning the number of rows affected
func (m *Manager) Expire(ctx context.Context, state State, endBefore time.Time) (int64, error) {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("state = ?", state).
		Where("current_period_end < ?", endBefore.UTC()).
		Update("state", StateExpired)
	if result.Error != nil {
		return 0, extErrors.Wrap(result.Error, "Unable to expire subscriptions in database")
	}
	return result.RowsAffected, nil
}
