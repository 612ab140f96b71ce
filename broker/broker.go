package broker

import (
	"context"

	"github.com/zllovesuki/adbill/notification"
)

// Broker publishes notifications for the mail worker and lets the worker receive them
type Broker interface {
	notification.Dispatcher
	ReceiveNotification(ctx context.Context) (<-chan *notification.Message, error)
	Close()
}
