package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LogDispatcher writes notifications to the log instead of delivering them. Used in development
type LogDispatcher struct {
	logger *zap.Logger
}

var _ Dispatcher = &LogDispatcher{}

func NewLogDispatcher(logger *zap.Logger) (*LogDispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &LogDispatcher{
		logger: logger,
	}, nil
}

func (l *LogDispatcher) Send(ctx context.Context, recipient string, template Template, data Data) error {
	l.logger.Info("Notification",
		zap.String("Recipient", recipient),
		zap.String("Template", string(template)),
		zap.Any("Data", data),
	)
	return nil
}
