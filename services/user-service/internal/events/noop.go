package events

import "context"

// NoopPublisher stands in when the broker is unavailable and the
// startup policy allows degraded operation: mutations keep working,
// nothing is emitted, downstream copies drift until sync returns.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ChangeEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
