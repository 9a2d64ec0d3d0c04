package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes run events to a topic, keyed by run id.
type Kafka struct {
	log    *zap.Logger
	topic  string
	writer messageWriter
}

// NewKafka returns a publisher to topic on brokers.
func NewKafka(log *zap.Logger, brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, Error.New("at least one broker is required")
	}
	if topic == "" {
		return nil, Error.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Kafka{log: log.Named("kafka"), topic: topic, writer: writer}, nil
}

// Notify implements Notifier.
func (k *Kafka) Notify(ctx context.Context, event RunCompleted) error {
	body, err := event.marshal()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("run.completed")},
			{Key: "status", Value: []byte(event.Status)},
		},
		Time: event.FinishedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return Error.New("failed to publish run %s: %w", event.RunID, err)
	}

	k.log.Info("Published run event", zap.String("topic", k.topic), zap.String("run_id", event.RunID))
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return Error.Wrap(k.writer.Close())
}
