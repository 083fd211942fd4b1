package domain

import (
	"context"
	"time"
)

// Event is a notification emitted after a reward operation completes.
// Events never participate in the currency invariant; losing one is acceptable.
type Event struct {
	Type       string
	Key        string
	Payload    any
	OccurredAt time.Time
}

// EventPublisher delivers events asynchronously.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(context.Context, Event) error {
	return nil
}
