// Package eventbus provides the broadcast layer bridging session state to subscribers.
package eventbus

import (
	"context"

	"github.com/flowsync-io/flowsync/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish broadcasts an event to every subscriber of the session topic.
	Publish(ctx context.Context, sessionID string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	// Subscribe starts consuming the session topic and dispatching to handlers.
	Subscribe(ctx context.Context, sessionID string) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
