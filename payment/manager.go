package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to payment Methods and Transactions
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
	if err := option.DB.AutoMigrate(&Method{}, &Transaction{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize payment.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) CreateMethod(ctx context.Context, method *Method) error {
	result := m.DB.WithContext(ctx).Create(method)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Cannot create payment method")
	}
	return nil
}

// ListMethods returns every stored instrument of userID, unordered
func (m *Manager) ListMethods(ctx context.Context, userID string) ([]Method, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("UserID is required")
	}
	methods := make([]Method, 0, 2)
	result := m.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&methods)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list payment methods")
	}
	return methods, nil
}

// ListCards returns the cards of userID in fallback order, see OrderCards
func (m *Manager) ListCards(ctx context.Context, userID string) ([]Method, error) {
	methods, err := m.ListMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	return OrderCards(methods), nil
}

// RecordTransaction appends tx, assigning an ID when it has none
func (m *Manager) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if len(tx.ID) == 0 {
		tx.ID = uuid.New().String()
	}
	result := m.DB.WithContext(ctx).Create(tx)
	if result.Error != nil {
		m.Logger.Error("Unable to record transaction in database",
			zap.String("UserID", tx.UserID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot record transaction")
	}
	return nil
}

type TransactionListOption struct {
	UserID         string
	SubscriptionID string
	Status         TransactionStatus
}

func (m *Manager) ListTransactions(ctx context.Context, opt TransactionListOption) ([]Transaction, error) {
	baseQuery := m.DB.WithContext(ctx).Order("created_at asc").Order("id asc")
	if len(opt.UserID) == 0 && len(opt.SubscriptionID) == 0 {
		return nil, fmt.Errorf("Either TransactionListOption.UserID or SubscriptionID is required")
	}
	if len(opt.UserID) > 0 {
		baseQuery = baseQuery.Where("user_id = ?", opt.UserID)
	}
	if len(opt.SubscriptionID) > 0 {
		baseQuery = baseQuery.Where("subscription_id = ?", opt.SubscriptionID)
	}
	if len(opt.Status) > 0 {
		baseQuery = baseQuery.Where("status = ?", opt.Status)
	}
	txs := make([]Transaction, 0, 2)
	if result := baseQuery.Find(&txs); result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot list transactions")
	}
	return txs, nil
}
