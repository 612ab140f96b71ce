package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/adbill/notification"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ Broker = &AMQPBroker{}

const (
	notificationExchange   string = "billing_notification"
	notificationQueue             = "billing_notification_email"
	notificationRoutingKey        = "email"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	logger     *zap.Logger
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(logger *zap.Logger, amqpURI string) (*AMQPBroker, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
		logger:     logger,
	}
	if err := broker.setupNotificationExchange(); err != nil {
		broker.Close()
		return nil, extErrors.Wrap(err, "Cannot declare exchange for notifications")
	}
	return broker, nil
}

func (a *AMQPBroker) setupNotificationExchange() error {
	if err := a.channel.ExchangeDeclare(
		notificationExchange, // name
		"direct",             // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	); err != nil {
		return err
	}
	if _, err := a.channel.QueueDeclare(
		notificationQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	return a.channel.QueueBind(
		notificationQueue,
		notificationRoutingKey,
		notificationExchange,
		false,
		nil,
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// Send publishes a persistent notification for the mail worker
func (a *AMQPBroker) Send(ctx context.Context, recipient string, template notification.Template, data notification.Data) error {
	body, err := notification.Encode(&notification.Message{
		Recipient: recipient,
		Template:  template,
		Data:      data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	if err := a.channel.Publish(
		notificationExchange,
		notificationRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  notification.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish notification")
	}
	return nil
}

// ReceiveNotification consumes the notification queue until ctx is done.
// Undecodable deliveries are dropped without requeue.
func (a *AMQPBroker) ReceiveNotification(ctx context.Context) (<-chan *notification.Message, error) {
	msgChan, err := a.channel.Consume(
		notificationQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *notification.Message)
	go func() {
		defer close(rChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgChan:
				if !ok {
					return
				}
				msg, err := notification.Decode(d.Body)
				if err != nil {
					a.logger.Error("Dropping undecodable notification",
						zap.Error(err),
					)
					d.Nack(false, false)
					continue
				}
				select {
				case rChan <- msg:
					d.Ack(false)
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()
	return rChan, nil
}
