package bootstrap

import (
	"fmt"

	"github.com/zllovesuki/adbill/billing"
	"github.com/zllovesuki/adbill/broker"
	"github.com/zllovesuki/adbill/config"
	"github.com/zllovesuki/adbill/db"
	"github.com/zllovesuki/adbill/external"
	"github.com/zllovesuki/adbill/lock"
	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/payment"
	"github.com/zllovesuki/adbill/subscription"

	"github.com/go-redis/redis/v7"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const runLockPrefix = "billing:"

// Engine is a fully wired billing batch with the connections it owns
type Engine struct {
	Subscriptions *subscription.Manager
	Payments      *payment.Manager
	Orchestrator  *billing.Orchestrator

	closers []func()
}

// Close releases every connection the Engine opened, in reverse order
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// NewRedis returns the client described by cfg and checks that it answers
func NewRedis(cfg *config.Config) (redis.UniversalClient, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisURI},
		Password: cfg.RedisPW,
		DB:       0,
	})
	if err := rdb.Ping().Err(); err != nil {
		rdb.Close()
		return nil, extErrors.Wrap(err, "Cannot connect to Redis")
	}
	return rdb, nil
}

// NewBroker connects to the configured notification transport. It returns nil for BrokerLog
func NewBroker(cfg *config.Config, logger *zap.Logger) (broker.Broker, error) {
	switch cfg.Broker {
	case config.BrokerAMQP:
		b, err := broker.NewAMQPBroker(logger, cfg.AMQPURI)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BrokerNATS:
		b, err := broker.NewNATSBroker(logger, cfg.NATSURI)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BrokerLog:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
}

// NewEngine opens the database, Redis and broker connections and wires the batch
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if len(cfg.StripeKey) == 0 {
		return nil, fmt.Errorf("STRIPE_KEY is required to charge renewals")
	}

	gdb, err := db.New(db.Options{
		URI:    cfg.PostgresURI,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return connect(cfg, logger, gdb)
}

// connect opens Redis, the broker and the gateway around gdb. On failure every
// connection opened so far is closed, gdb's pool included.
func connect(cfg *config.Config, logger *zap.Logger, gdb *gorm.DB) (engine *Engine, err error) {
	closers := make([]func(), 0, 3)
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	pool, err := gdb.DB()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot get database pool")
	}
	closers = append(closers, func() { pool.Close() })

	rdb, err := NewRedis(cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { rdb.Close() })

	b, err := NewBroker(cfg, logger)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Broker")
	}
	var dispatcher notification.Dispatcher
	if b != nil {
		closers = append(closers, b.Close)
		dispatcher = b
	} else {
		if dispatcher, err = notification.NewLogDispatcher(logger); err != nil {
			return nil, err
		}
	}

	authorizer, err := payment.NewStripeAuthorizer(payment.StripeAuthorizerOptions{
		StripeClient: external.NewStripeClient(cfg.StripeKey),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err = assemble(cfg, logger, gdb, rdb, authorizer, dispatcher)
	if err != nil {
		return nil, err
	}
	engine.closers = closers
	return engine, nil
}

func assemble(cfg *config.Config, logger *zap.Logger, gdb *gorm.DB, rdb redis.UniversalClient, authorizer payment.Authorizer, dispatcher notification.Dispatcher) (*Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	catalog, err := subscription.LoadCatalog(cfg.PlansPath)
	if err != nil {
		return nil, err
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     gdb,
		Logger: logger,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize SubscriptionManager")
	}

	paymentManager, err := payment.NewManager(payment.ManagerOptions{
		DB:     gdb,
		Logger: logger,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize PaymentManager")
	}

	runLock, err := lock.NewRedis(rdb, runLockPrefix, cfg.RunLockTTL)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize run lock")
	}

	processor, err := billing.NewProcessor(billing.ProcessorOptions{
		Subscriptions: subscriptionManager,
		Payments:      paymentManager,
		Catalog:       catalog,
		Authorizer:    authorizer,
		Dispatcher:    dispatcher,
		Logger:        logger.With(zap.String("Phase", "renewal")),
		CallTimeout:   cfg.CallTimeout,
	})
	if err != nil {
		return nil, err
	}

	reminders, err := billing.NewReminderScheduler(billing.ReminderSchedulerOptions{
		Subscriptions: subscriptionManager,
		Catalog:       catalog,
		Dispatcher:    dispatcher,
		Logger:        logger.With(zap.String("Phase", "reminder")),
		CallTimeout:   cfg.CallTimeout,
	})
	if err != nil {
		return nil, err
	}

	sweeper, err := billing.NewSweeper(billing.SweeperOptions{
		Subscriptions: subscriptionManager,
		Logger:        logger.With(zap.String("Phase", "expiry")),
	})
	if err != nil {
		return nil, err
	}

	orchestrator, err := billing.NewOrchestrator(billing.OrchestratorOptions{
		Subscriptions: subscriptionManager,
		Reminders:     reminders,
		Renewals:      processor,
		Sweeper:       sweeper,
		Lock:          runLock,
		Location:      loc,
		GraceDays:     cfg.GracePeriodDays,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Subscriptions: subscriptionManager,
		Payments:      paymentManager,
		Orchestrator:  orchestrator,
	}, nil
}
