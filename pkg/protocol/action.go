// Package protocol defines the contracts between the engine core and
// pluggable action implementations.
package protocol

import (
	"context"
	"log/slog"

	"github.com/relaycrm/automation/pkg/models"
)

// Action is one executable effect. Execute receives the in-flight execution
// context; implementations must honour ctx cancellation since every attempt
// runs under a deadline.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)
}

// ActionFactory creates Action instances from a raw configuration blob. The
// factory owns validation of its own config shape via Schema.
type ActionFactory interface {
	ID() string
	Name() string
	Description() string
	// Schema returns the JSON schema the configuration is validated against
	// at creation time.
	Schema() map[string]any
	Create(config map[string]any) (Action, error)
}
