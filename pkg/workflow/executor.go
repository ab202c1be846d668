package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/registry"
)

const (
	// DefaultMaxRetries applies when an action does not set max_retries.
	DefaultMaxRetries = 3

	// DefaultTimeout applies when an action does not set a per-attempt
	// timeout.
	DefaultTimeout = 30 * time.Second

	defaultBackoff = 500 * time.Millisecond
)

// Executor runs a single configured action through its registered handler,
// retrying with a constant backoff and bounding each attempt with a timeout.
type Executor struct {
	registry *registry.Registry
	logger   *slog.Logger
	backoff  time.Duration
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: reg,
		logger:   logger.With("module", "executor"),
		backoff:  defaultBackoff,
	}
}

// Execute instantiates the action handler and runs it until it succeeds or
// its retry budget is exhausted. Configuration errors are not retried: a
// config that fails schema validation today will fail identically tomorrow.
func (e *Executor) Execute(ctx context.Context, action *models.WorkflowAction, executionCtx models.ExecutionContext) (any, error) {
	handler, err := e.registry.CreateAction(action.Type, action.Configuration)
	if err != nil {
		return nil, &ActionError{ActionType: action.Type, Attempts: 0, Err: err}
	}

	maxRetries := action.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	timeout := action.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var result any

	attempts := 0

	err = retry.Do(ctx, retry.WithMaxRetries(uint64(maxRetries), retry.NewConstant(e.backoff)), func(ctx context.Context) error {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := handler.Execute(attemptCtx, executionCtx, e.logger)
		if err != nil {
			e.logger.WarnContext(ctx, "Action attempt failed",
				"action_type", action.Type,
				"execution_id", executionCtx.ExecutionID,
				"attempt", attempts,
				"error", err)

			return retry.RetryableError(fmt.Errorf("attempt %d: %w", attempts, err))
		}

		result = out

		return nil
	})
	if err != nil {
		return nil, &ActionError{ActionType: action.Type, Attempts: attempts, Err: err}
	}

	return result, nil
}
