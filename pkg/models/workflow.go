// Package models defines the core domain models for the workflow automation engine.
package models

import "time"

// TriggerType enumerates how a workflow becomes a candidate to run.
type TriggerType string

const (
	TriggerTypeTime      TriggerType = "time"      // fired by a schedule expression
	TriggerTypeEvent     TriggerType = "event"     // fired by an entity/event pair
	TriggerTypeCondition TriggerType = "condition" // fired by an external condition poller
	TriggerTypeManual    TriggerType = "manual"    // fired only on demand
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTypeTime, TriggerTypeEvent, TriggerTypeCondition, TriggerTypeManual:
		return true
	}

	return false
}

// Workflow is a persisted automation rule: a trigger binding, an optional
// guard condition tree and an ordered list of actions.
type Workflow struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"           validate:"required,min=3"`
	Description   string             `json:"description"`
	TriggerType   TriggerType        `json:"trigger_type"   validate:"required"`
	TriggerConfig map[string]any     `json:"trigger_config,omitempty"`
	Conditions    *Condition         `json:"conditions,omitempty"`
	Actions       []*WorkflowAction  `json:"actions"        validate:"required,min=1,dive"`
	Triggers      []*WorkflowTrigger `json:"triggers,omitempty"`
	Active        bool               `json:"active"`
	Priority      int                `json:"priority"`
	Owner         string             `json:"owner"          validate:"required"`

	// Derived aggregates, mutated only by the execution ledger.
	ExecutionCount int        `json:"execution_count"`
	SuccessRate    float64    `json:"success_rate"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowAction is one configured effect with its own retry, timeout and
// criticality policy. Actions run in ascending ExecutionOrder.
type WorkflowAction struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	Type           string         `json:"type"          validate:"required"`
	Configuration  map[string]any `json:"configuration,omitempty"`
	Critical       bool           `json:"critical"`
	MaxRetries     int            `json:"max_retries"`
	Timeout        time.Duration  `json:"timeout"`
	ExecutionOrder int            `json:"execution_order"`
}
