package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/automation/pkg/models"
)

func eventWorkflow(name string, priority int, entityType, eventType string) *models.Workflow {
	spec := validWorkflow("log")
	spec.Name = name
	spec.Priority = priority
	spec.TriggerConfig = map[string]any{
		"entity_type": entityType,
		"event_type":  eventType,
	}

	return spec
}

func TestTriggerManagerMatchEvent(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	leadLow, err := engine.Service.Create(ctx, eventWorkflow("Lead created low", 1, "lead", "created"))
	require.NoError(t, err)

	leadHigh, err := engine.Service.Create(ctx, eventWorkflow("Lead created high", 9, "lead", "created"))
	require.NoError(t, err)

	_, err = engine.Service.Create(ctx, eventWorkflow("Deal closed", 5, "deal", "closed"))
	require.NoError(t, err)

	inactive := eventWorkflow("Inactive lead rule", 9, "lead", "created")
	inactive.Active = false
	_, err = engine.Service.Create(ctx, inactive)
	require.NoError(t, err)

	ids, err := engine.Triggers.MatchEvent(ctx, "lead", "created", map[string]any{"lead_id": "l-1"})
	require.NoError(t, err)

	// Higher priority first, non-matching and inactive workflows excluded.
	assert.Equal(t, []string{leadHigh.ID, leadLow.ID}, ids)
}

func TestTriggerManagerMatchEventPrefilter(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	spec := eventWorkflow("Hot leads only", 5, "lead", "created")
	spec.Triggers = []*models.WorkflowTrigger{{
		TriggerType: models.TriggerTypeEvent,
		EntityType:  "lead",
		EventType:   "created",
		Active:      true,
		Conditions: &models.Condition{
			Operator: models.OperatorGreaterEqual,
			Field:    "score",
			Value:    80,
		},
	}}

	created, err := engine.Service.Create(ctx, spec)
	require.NoError(t, err)

	cold, err := engine.Triggers.MatchEvent(ctx, "lead", "created", map[string]any{"score": 10})
	require.NoError(t, err)
	assert.Empty(t, cold)

	hot, err := engine.Triggers.MatchEvent(ctx, "lead", "created", map[string]any{"score": 95})
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, hot)
}

func TestTriggerManagerDispatchEventIsolatesFailures(t *testing.T) {
	engine, _, _ := testEngine(t,
		newScriptedFactory("log", 0, "ok", nil),
		newScriptedFactory("broken", 100, nil, nil))
	ctx := context.Background()

	failing := eventWorkflow("Failing rule", 9, "lead", "created")
	failing.Actions = []*models.WorkflowAction{{Type: "broken", MaxRetries: 1, Timeout: time.Second, Critical: true}}
	_, err := engine.Service.Create(ctx, failing)
	require.NoError(t, err)

	healthy, err := engine.Service.Create(ctx, eventWorkflow("Healthy rule", 1, "lead", "created"))
	require.NoError(t, err)

	executions, err := engine.Triggers.DispatchEvent(ctx, "lead", "created", map[string]any{"lead_id": "l-1"})
	require.NoError(t, err)
	require.Len(t, executions, 2)

	assert.Equal(t, models.ExecutionStatusFailed, executions[0].Status)
	assert.Equal(t, healthy.ID, executions[1].WorkflowID)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[1].Status)
}

func TestTriggerManagerDispatchEventPropagatesPayload(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	spec := eventWorkflow("Qualified leads", 5, "lead", "created")
	spec.Conditions = &models.Condition{
		Operator: models.OperatorEqual,
		Field:    "status",
		Value:    "qualified",
	}

	_, err := engine.Service.Create(ctx, spec)
	require.NoError(t, err)

	executions, err := engine.Triggers.DispatchEvent(ctx, "lead", "created",
		map[string]any{"status": "qualified"})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[0].Status)
	assert.Equal(t, "qualified", executions[0].TriggerData["status"])
	assert.Equal(t, "event", executions[0].ContextData["source"])
}

func TestTriggerManagerProcessDueFiresElapsedSchedules(t *testing.T) {
	engine, store, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	spec := validWorkflow("log")
	spec.TriggerType = models.TriggerTypeTime
	spec.TriggerConfig = map[string]any{"schedule": "* * * * *"}

	created, err := engine.Service.Create(ctx, spec)
	require.NoError(t, err)

	// Last fired two minutes ago: the every-minute schedule has elapsed.
	triggers, err := store.Triggers().ListActive(ctx, nil)
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	past := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, store.Triggers().MarkFired(ctx, triggers[0].ID, past))

	summary, err := engine.Triggers.ProcessDue(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Fired)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, created.ID, summary.Outcomes[0].WorkflowID)
	assert.NotEmpty(t, summary.Outcomes[0].ExecutionID)

	execution, err := engine.Ledger.GetExecution(ctx, summary.Outcomes[0].ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "schedule", execution.ContextData["source"])
}

func TestTriggerManagerProcessDueSkipsFreshSchedules(t *testing.T) {
	engine, store, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	spec := validWorkflow("log")
	spec.TriggerType = models.TriggerTypeTime
	spec.TriggerConfig = map[string]any{"schedule": "* * * * *"}

	_, err := engine.Service.Create(ctx, spec)
	require.NoError(t, err)

	triggers, err := store.Triggers().ListActive(ctx, nil)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.NoError(t, store.Triggers().MarkFired(ctx, triggers[0].ID, time.Now().UTC()))

	summary, err := engine.Triggers.ProcessDue(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.Fired)
}

func TestTriggerManagerProcessDueSkipsInvalidSchedule(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	good := validWorkflow("log")
	good.TriggerType = models.TriggerTypeTime
	good.TriggerConfig = map[string]any{"schedule": "* * * * *"}
	good.Triggers = []*models.WorkflowTrigger{{
		TriggerType:        models.TriggerTypeTime,
		ScheduleExpression: "* * * * *",
		Active:             true,
		LastFiredAt:        timePtr(time.Now().UTC().Add(-2 * time.Minute)),
	}}

	_, err := engine.Service.Create(ctx, good)
	require.NoError(t, err)

	bad := validWorkflow("log")
	bad.Name = "Bad schedule rule"
	bad.TriggerType = models.TriggerTypeTime
	bad.Triggers = []*models.WorkflowTrigger{{
		TriggerType:        models.TriggerTypeTime,
		ScheduleExpression: "not a cron line",
		Active:             true,
	}}

	_, err = engine.Service.Create(ctx, bad)
	require.NoError(t, err)

	summary, err := engine.Triggers.ProcessDue(ctx, nil)
	require.NoError(t, err)

	// The malformed schedule is skipped, the healthy one still fires.
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Fired)
}

func TestTriggerManagerProcessBatch(t *testing.T) {
	recorder := &callRecorder{}
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", recorder))
	ctx := context.Background()

	ids := make([]string, 0, 5)

	for i := 0; i < 5; i++ {
		spec := validWorkflow("log")
		spec.Name = "Batch rule " + string(rune('A'+i))
		spec.TriggerType = models.TriggerTypeManual

		created, err := engine.Service.Create(ctx, spec)
		require.NoError(t, err)

		ids = append(ids, created.ID)
	}

	executions := engine.Triggers.ProcessBatch(ctx, ids, map[string]any{"campaign": "q3"}, 2)

	require.Len(t, executions, 5)
	assert.Len(t, recorder.Calls(), 5)

	for _, execution := range executions {
		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, "q3", execution.TriggerData["campaign"])
		assert.Equal(t, "batch", execution.ContextData["source"])
	}
}

func TestTriggerManagerProcessBatchSkipsFailingStarts(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	created, err := engine.Service.Create(ctx, validWorkflow("log"))
	require.NoError(t, err)

	executions := engine.Triggers.ProcessBatch(ctx,
		[]string{"missing", created.ID}, nil, 0)

	require.Len(t, executions, 1)
	assert.Equal(t, created.ID, executions[0].WorkflowID)
}

func timePtr(t time.Time) *time.Time { return &t }
