package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rifat-hasan/usergate/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Publisher emits a ChangeEvent after a committed identity mutation.
// Implementations are best-effort: the mutation is already durable when
// Publish is called, and a failed publish must not fail the request.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Close() error
}

// KafkaPublisher writes change events to the user.sync topic with
// persistent (acked) delivery. Writes are bounded so a slow broker
// cannot hold the HTTP response indefinitely.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

type KafkaConfig struct {
	Brokers      string
	WriteTimeout time.Duration
}

func NewKafkaPublisher(logger *slog.Logger, cfg KafkaConfig) *KafkaPublisher {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkax.SplitBrokers(cfg.Brokers)...),
		Topic:        Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "routing_key", Value: []byte(RoutingKey)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.Info("published change event", "user_id", ev.UserID, "topic", Topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
