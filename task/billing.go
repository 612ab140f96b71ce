package task

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/adbill/billing"

	extErrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type BillingOptions struct {
	Runner   billing.Runner
	Schedule string // standard 5-field cron expression or descriptor
	Location *time.Location
	Logger   *zap.Logger
}

// BillingTask triggers the billing batch on a cron schedule
type BillingTask struct {
	BillingOptions
	cron *cron.Cron
}

func NewBillingTask(option BillingOptions) (*BillingTask, error) {
	if option.Runner == nil {
		return nil, fmt.Errorf("nil Runner is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Schedule == "" {
		return nil, fmt.Errorf("empty Schedule is invalid")
	}
	if option.Location == nil {
		option.Location = time.UTC
	}
	if _, err := cron.ParseStandard(option.Schedule); err != nil {
		return nil, extErrors.Wrapf(err, "Invalid billing schedule %q", option.Schedule)
	}

	logger := &cronLogger{logger: option.Logger}
	c := cron.New(
		cron.WithLocation(option.Location),
		cron.WithLogger(logger),
		// a batch still running when the next tick fires is left alone
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &BillingTask{
		BillingOptions: option,
		cron:           c,
	}, nil
}

// RunOnce executes a single batch and returns its result.
// The batch runs to completion even if ctx is cancelled; overlap is handled by the run lock and renewal claims.
func (t *BillingTask) RunOnce(ctx context.Context) *billing.Result {
	result := t.Runner.Run(context.WithoutCancel(ctx))
	if !result.Success {
		t.Logger.Error("Scheduled billing run failed",
			zap.String("Error", result.Error),
		)
		return result
	}
	t.Logger.Info("Scheduled billing run completed",
		zap.Int("RemindersSent", result.Results.RemindersSent),
		zap.Int("RenewalsProcessed", result.Results.RenewalsProcessed),
		zap.Int("RenewalsFailed", result.Results.RenewalsFailed),
		zap.Int64("ExpiredMarked", result.Results.ExpiredMarked),
		zap.Strings("Errors", result.Results.Errors),
	)
	return result
}

// Start schedules the batch and returns immediately. Cancelling ctx only stops the schedule;
// the returned channel is closed once the in-flight batch, if any, has finished.
func (t *BillingTask) Start(ctx context.Context) (<-chan struct{}, error) {
	if _, err := t.cron.AddFunc(t.Schedule, func() {
		t.RunOnce(ctx)
	}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot schedule billing run")
	}
	t.cron.Start()
	t.Logger.Info("Billing schedule started",
		zap.String("Schedule", t.Schedule),
		zap.String("Location", t.Location.String()),
	)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		<-t.cron.Stop().Done()
		close(done)
	}()
	return done, nil
}

// cronLogger routes cron's own logging into zap
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("Cron", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg,
		zap.Error(err),
		zap.Any("Cron", keysAndValues),
	)
}
