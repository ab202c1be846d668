package models

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowValidation(t *testing.T) {
	validate := validator.New()

	valid := &Workflow{
		Name:        "Welcome new leads",
		TriggerType: TriggerTypeEvent,
		Owner:       "user-1",
		Actions: []*WorkflowAction{
			{Type: "log", ExecutionOrder: 1},
		},
	}
	require.NoError(t, validate.Struct(valid))

	tests := []struct {
		name     string
		workflow *Workflow
	}{
		{"missing name", &Workflow{TriggerType: TriggerTypeEvent, Owner: "u", Actions: []*WorkflowAction{{Type: "log"}}}},
		{"short name", &Workflow{Name: "ab", TriggerType: TriggerTypeEvent, Owner: "u", Actions: []*WorkflowAction{{Type: "log"}}}},
		{"missing owner", &Workflow{Name: "valid name", TriggerType: TriggerTypeEvent, Actions: []*WorkflowAction{{Type: "log"}}}},
		{"empty actions", &Workflow{Name: "valid name", TriggerType: TriggerTypeEvent, Owner: "u", Actions: []*WorkflowAction{}}},
		{"action without type", &Workflow{Name: "valid name", TriggerType: TriggerTypeEvent, Owner: "u", Actions: []*WorkflowAction{{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validate.Struct(tt.workflow))
		})
	}
}

func TestTriggerTypeValid(t *testing.T) {
	for _, triggerType := range []TriggerType{TriggerTypeTime, TriggerTypeEvent, TriggerTypeCondition, TriggerTypeManual} {
		assert.True(t, triggerType.Valid())
	}

	assert.False(t, TriggerType("webhook").Valid())
	assert.False(t, TriggerType("").Valid())
}

func TestExecutionStatusTransitions(t *testing.T) {
	assert.True(t, ExecutionStatusPending.CanTransitionTo(ExecutionStatusRunning))
	assert.True(t, ExecutionStatusPending.CanTransitionTo(ExecutionStatusCancelled))
	assert.True(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusCompleted))
	assert.True(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusFailed))

	assert.False(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusPending))
	assert.False(t, ExecutionStatusCompleted.CanTransitionTo(ExecutionStatusRunning))
	assert.False(t, ExecutionStatusFailed.CanTransitionTo(ExecutionStatusCompleted))
	assert.False(t, ExecutionStatusCancelled.CanTransitionTo(ExecutionStatusRunning))
}

func TestExecutionFactsMerge(t *testing.T) {
	execution := &WorkflowExecution{
		TriggerData: map[string]any{"entity": "lead", "id": "42"},
		ContextData: map[string]any{"actor": "user-1", "id": "ignored"},
	}

	facts := execution.Facts()

	assert.Equal(t, "lead", facts["entity"])
	assert.Equal(t, "user-1", facts["actor"])
	// Trigger data wins over context data on key collisions.
	assert.Equal(t, "42", facts["id"])
}
