package kafkax

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Ping dials the first configured broker to verify reachability.
func Ping(ctx context.Context, brokers string) error {
	list := SplitBrokers(brokers)
	if len(list) == 0 {
		return errors.New("kafka brokers not configured")
	}
	dialer := kafka.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", list[0])
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		return Ping(ctx, brokers)
	}
}
