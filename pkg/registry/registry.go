// Package registry maps action-type identifiers to handler factories so new
// action types register without modifying the orchestrator.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/relaycrm/automation/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory

	r.logger.Debug("Registered action factory", "action_type", factory.ID())
}

// AvailableActions returns the registered action type identifiers.
func (r *Registry) AvailableActions() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	return types
}

// IsActionRegistered checks whether an action type has a factory.
func (r *Registry) IsActionRegistered(actionType string) bool {
	_, exists := r.actionFactories[actionType]

	return exists
}

// CreateAction validates config against the factory's schema and builds the
// handler.
func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

func (r *Registry) validateConfig(factory protocol.ActionFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for action type '%s': %w", factory.ID(), err)
	}

	if !result.Valid() {
		first := result.Errors()[0]

		return fmt.Errorf("invalid config for action type '%s': %s", factory.ID(), first.String())
	}

	return nil
}
