package models

import "time"

// WorkflowTrigger is a persisted binding describing when its workflow should
// fire. Trigger-level conditions act as a prefilter over the inbound payload,
// independent of the workflow's own guard conditions.
type WorkflowTrigger struct {
	ID                 string      `json:"id"`
	WorkflowID         string      `json:"workflow_id"`
	TriggerType        TriggerType `json:"trigger_type" validate:"required"`
	EntityType         string      `json:"entity_type,omitempty"`
	EventType          string      `json:"event_type,omitempty"`
	Conditions         *Condition  `json:"conditions,omitempty"`
	ScheduleExpression string      `json:"schedule_expression,omitempty"`
	Active             bool        `json:"active"`
	LastFiredAt        *time.Time  `json:"last_fired_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}
