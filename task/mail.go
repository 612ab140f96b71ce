package task

import (
	"context"
	"fmt"

	"github.com/zllovesuki/adbill/notification"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Receiver yields queued notifications, see broker.Broker
type Receiver interface {
	ReceiveNotification(ctx context.Context) (<-chan *notification.Message, error)
}

// Deliverer sends one notification to its recipient, see notification.Mailer
type Deliverer interface {
	Deliver(msg *notification.Message) error
}

type MailOptions struct {
	Receiver  Receiver
	Deliverer Deliverer
	Logger    *zap.Logger
}

// MailTask drains the notification queue into email
type MailTask struct {
	MailOptions
}

func NewMailTask(option MailOptions) (*MailTask, error) {
	if option.Receiver == nil {
		return nil, fmt.Errorf("nil Receiver is invalid")
	}
	if option.Deliverer == nil {
		return nil, fmt.Errorf("nil Deliverer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &MailTask{
		MailOptions: option,
	}, nil
}

func (t *MailTask) handleNotification(ctx context.Context, mChan <-chan *notification.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-mChan:
			if !ok {
				t.Logger.Warn("Notification channel closed")
				return
			}
			if err := t.Deliverer.Deliver(msg); err != nil {
				// delivery is best-effort, a failed email is not retried
				t.Logger.Error("Cannot deliver notification",
					zap.String("Recipient", msg.Recipient),
					zap.String("Template", string(msg.Template)),
					zap.Error(err),
				)
			}
		}
	}
}

// HandleNotifications starts delivering queued notifications until ctx is done
func (t *MailTask) HandleNotifications(ctx context.Context) error {
	mChan, err := t.Receiver.ReceiveNotification(ctx)
	if err != nil {
		return extErrors.Wrap(err, "Cannot get notification channel")
	}
	go t.handleNotification(ctx, mChan)
	return nil
}
