package notify

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpDialer func(url string) (amqpChannel, func() error, error)

func dialAMQP(url string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQP publishes run events to a durable queue. A connection is opened per event.
type AMQP struct {
	log   *zap.Logger
	url   string
	queue string
	dial  amqpDialer
}

// NewAMQP returns a publisher to queue on the broker at url.
func NewAMQP(log *zap.Logger, url, queue string) *AMQP {
	return &AMQP{
		log:   log.Named("amqp"),
		url:   url,
		queue: queue,
		dial:  dialAMQP,
	}
}

// Notify implements Notifier.
func (a *AMQP) Notify(ctx context.Context, event RunCompleted) error {
	body, err := event.marshal()
	if err != nil {
		return err
	}

	ch, closeConn, err := a.dial(a.url)
	if err != nil {
		return Error.New("failed to connect to broker: %w", err)
	}
	defer func() {
		_ = ch.Close()
		_ = closeConn()
	}()

	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		return Error.New("failed to declare queue %s: %w", a.queue, err)
	}

	err = ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.RunID,
		Timestamp:    event.FinishedAt,
		Type:         "run.completed",
		Body:         body,
	})
	if err != nil {
		return Error.New("failed to publish run %s: %w", event.RunID, err)
	}

	a.log.Info("Published run event", zap.String("queue", a.queue), zap.String("run_id", event.RunID))
	return nil
}

// Close implements Notifier.
func (a *AMQP) Close() error { return nil }
