package models

import "time"

// ExecutionStatus is the lifecycle state of a single workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal executions never
// transition again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}

	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next: pending -> running or any terminal, running -> any terminal.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next.Terminal()
	case ExecutionStatusRunning:
		return next.Terminal()
	}

	return false
}

// ActionRecord is one entry in an execution's audit trail, one per action
// attempted.
type ActionRecord struct {
	Action     string          `json:"action"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Status     ExecutionStatus `json:"status"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// WorkflowExecution is one attempt to run a workflow's action pipeline.
type WorkflowExecution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	TriggerData     map[string]any  `json:"trigger_data,omitempty"`
	ContextData     map[string]any  `json:"context_data,omitempty"`
	Status          ExecutionStatus `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionLog    []string        `json:"execution_log,omitempty"`
	ActionsExecuted []ActionRecord  `json:"actions_executed,omitempty"`
}

// Facts returns the merged namespace condition fields resolve against:
// trigger data first, context data filling in the rest.
func (e *WorkflowExecution) Facts() map[string]any {
	facts := make(map[string]any, len(e.TriggerData)+len(e.ContextData))

	for k, v := range e.ContextData {
		facts[k] = v
	}

	for k, v := range e.TriggerData {
		facts[k] = v
	}

	return facts
}

// ExecutionContext is the view of an in-flight execution handed to action
// handlers. Later actions may read results written by earlier ones.
type ExecutionContext struct {
	ExecutionID   string         `json:"execution_id"`
	WorkflowID    string         `json:"workflow_id"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
	ContextData   map[string]any `json:"context_data,omitempty"`
	ActionResults map[string]any `json:"action_results,omitempty"`
}
