package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/rifat-hasan/usergate/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one delivered message payload.
type Handler func(ctx context.Context, payload []byte) error

// Consumer binds one durable consumer group to the user.sync topic and
// processes deliveries one at a time with explicit acknowledgment.
//
// Ack/nack semantics on Kafka: committing the offset acknowledges the
// message. A processing failure is logged, optionally copied to the
// dead-letter topic for inspection, and then committed anyway: the
// failed message is permanently discarded, never requeued, and nothing
// retries it.
type Consumer struct {
	reader  *kafka.Reader
	dlq     *kafka.Writer
	logger  *slog.Logger
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// DLQTopic, when set, receives a copy of each failed message
	// before it is discarded. Nothing consumes it automatically.
	DLQTopic string
}

func NewConsumer(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	var dlq *kafka.Writer
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 5 * time.Second,
		}
	}

	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		logger:  logger,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	if c.dlq != nil {
		defer c.dlq.Close()
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		msgCtx := kafkax.ExtractTraceContext(ctx, msg)
		spanCtx, span := otel.Tracer("kafka").Start(msgCtx, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		if err := c.handler(spanCtx, msg.Value); err != nil {
			c.logger.Error("message processing failed, dropping", "err", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			span.RecordError(err)
			c.deadLetter(spanCtx, msg, err)
		}
		span.End()

		// Commit in both outcomes: success acks the message, failure
		// discards it without requeue.
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "err", err)
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		),
	}
	if err := c.dlq.WriteMessages(ctx, out); err != nil {
		c.logger.Error("dead-letter write failed", "err", err)
	}
}
