// Package workflow implements the automation engine core: definition
// management, condition gating, action dispatch, execution bookkeeping and
// trigger processing.
package workflow

import (
	"errors"
	"fmt"

	"github.com/relaycrm/automation/pkg/persistence"
)

// Caller-visible errors. Validation and not-found errors are never retried
// automatically.
var (
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
	ErrTemplateNotFound  = persistence.ErrTemplateNotFound

	// ErrInvalidWorkflow indicates a malformed or incomplete workflow spec.
	ErrInvalidWorkflow = errors.New("invalid workflow spec")

	// ErrInvalidTemplate indicates a malformed or incomplete template spec.
	ErrInvalidTemplate = errors.New("invalid template spec")

	// ErrNoActions indicates a workflow spec without any actions.
	ErrNoActions = errors.New("workflow must have at least one action")

	// ErrInvalidTriggerType indicates a trigger type outside the enum.
	ErrInvalidTriggerType = errors.New("invalid trigger type")

	// ErrActionOrder indicates action execution orders that are not strictly
	// increasing.
	ErrActionOrder = errors.New("action execution order must be strictly increasing")

	// ErrWorkflowInactive indicates an execution request against an inactive
	// workflow.
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrPermissionDenied indicates the requesting owner does not own the
	// record.
	ErrPermissionDenied = errors.New("permission denied")
)

// ActionError reports a single action that failed after exhausting its
// retries. The orchestrator decides whether it is fatal based on the
// action's criticality.
type ActionError struct {
	ActionType string
	Attempts   int
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action '%s' failed after %d attempts: %v", e.ActionType, e.Attempts, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsValidationError checks whether an error indicates a malformed spec.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidTemplate) ||
		errors.Is(err, ErrNoActions) ||
		errors.Is(err, ErrInvalidTriggerType) ||
		errors.Is(err, ErrActionOrder)
}
