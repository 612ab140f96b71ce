package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/adbill/notification"

	"github.com/nats-io/nats.go"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	notificationSubject = "billing.notification.email"
	mailerQueueGroup    = "mailer"
)

// NATSBroker describes a message broker via NATS. Delivery is at-most-once
type NATSBroker struct {
	conn   *nats.Conn
	logger *zap.Logger
}

var _ Broker = &NATSBroker{}

func NewNATSBroker(logger *zap.Logger, natsURI string) (*NATSBroker, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	conn, err := nats.Connect(natsURI, nats.Name("adbill"))
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	return &NATSBroker{
		conn:   conn,
		logger: logger,
	}, nil
}

func (n *NATSBroker) Close() {
	n.conn.Drain()
}

func (n *NATSBroker) Send(ctx context.Context, recipient string, template notification.Template, data notification.Data) error {
	body, err := notification.Encode(&notification.Message{
		Recipient: recipient,
		Template:  template,
		Data:      data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	if err := n.conn.Publish(notificationSubject, body); err != nil {
		return extErrors.Wrap(err, "Cannot publish notification")
	}
	return nil
}

func (n *NATSBroker) ReceiveNotification(ctx context.Context) (<-chan *notification.Message, error) {
	natsChan := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanQueueSubscribe(notificationSubject, mailerQueueGroup, natsChan)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot subscribe to notifications")
	}
	rChan := make(chan *notification.Message)
	go func() {
		defer close(rChan)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-natsChan:
				msg, err := notification.Decode(m.Data)
				if err != nil {
					n.logger.Error("Dropping undecodable notification",
						zap.Error(err),
					)
					continue
				}
				select {
				case rChan <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return rChan, nil
}
