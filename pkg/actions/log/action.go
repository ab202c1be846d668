// Package log provides the builtin log action: it writes a configured
// message to the structured logger, mostly useful for rule debugging.
package log

import (
	"context"
	"log/slog"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/protocol"
)

// ActionFactory builds LogAction instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Logs a message at a configurable level."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	if level == "" {
		level = "info"
	}

	return &LogAction{message: message, level: level}, nil
}

// LogAction writes one line per execution.
type LogAction struct {
	message string
	level   string
}

func (a *LogAction) Execute(_ context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "log", "execution_id", executionCtx.ExecutionID)

	switch a.level {
	case "debug":
		logger.Debug(a.message)
	case "warn":
		logger.Warn(a.message)
	case "error":
		logger.Error(a.message)
	default:
		logger.Info(a.message)
	}

	return map[string]any{"message": a.message, "level": a.level}, nil
}
