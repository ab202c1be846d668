// Package eventbus publishes and consumes workflow execution lifecycle
// events.
package eventbus

import (
	"context"

	"github.com/relaycrm/automation/pkg/events"
)

type EventHandler func(ctx context.Context, event any) error

// EventBus decouples execution outcome reporting from its consumers.
// Publishing is best-effort: the engine logs and continues when a publish
// fails.
type EventBus interface {
	Publish(ctx context.Context, key string, event events.Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
