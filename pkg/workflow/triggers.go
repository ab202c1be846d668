package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

const (
	// DefaultBatchSize bounds how many workflows run back to back before the
	// batch processor pauses.
	DefaultBatchSize = 10

	defaultBatchPause = 100 * time.Millisecond

	// scheduleLookback bounds how far back a never-fired schedule is
	// considered when deciding whether it is due.
	scheduleLookback = time.Minute
)

// TriggerManager matches incoming CRM events against trigger bindings and
// fires time-based triggers whose schedule has elapsed.
type TriggerManager struct {
	persistence  persistence.Persistence
	orchestrator *Orchestrator
	evaluator    *models.ConditionEvaluator
	logger       *slog.Logger

	batchSize  int
	batchPause time.Duration
}

func NewTriggerManager(p persistence.Persistence, orchestrator *Orchestrator, logger *slog.Logger) *TriggerManager {
	log := logger.With("module", "triggers")

	return &TriggerManager{
		persistence:  p,
		orchestrator: orchestrator,
		evaluator:    models.NewConditionEvaluator(log),
		logger:       log,
		batchSize:    DefaultBatchSize,
		batchPause:   defaultBatchPause,
	}
}

// MatchEvent returns the ids of active workflows whose event triggers match
// the entity/event pair and whose trigger prefilter accepts the payload,
// ordered by workflow priority descending.
func (m *TriggerManager) MatchEvent(ctx context.Context, entityType, eventType string, payload map[string]any) ([]string, error) {
	triggerType := models.TriggerTypeEvent

	triggers, err := m.persistence.Triggers().ListActive(ctx, &triggerType)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]bool)

	for _, trigger := range triggers {
		if trigger.EntityType != entityType || trigger.EventType != eventType {
			continue
		}

		if !m.evaluator.Evaluate(trigger.Conditions, payload) {
			continue
		}

		matched[trigger.WorkflowID] = true
	}

	if len(matched) == 0 {
		return nil, nil
	}

	// List already orders by priority descending, so intersecting preserves
	// the execution order.
	workflows, err := m.persistence.Workflows().List(ctx, persistence.WorkflowFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matched))

	for _, workflow := range workflows {
		if matched[workflow.ID] {
			ids = append(ids, workflow.ID)
		}
	}

	return ids, nil
}

// DispatchEvent matches an incoming CRM event and executes every matched
// workflow. A failing workflow never prevents the remaining matches from
// running.
func (m *TriggerManager) DispatchEvent(ctx context.Context, entityType, eventType string, payload map[string]any) ([]*models.WorkflowExecution, error) {
	ids, err := m.MatchEvent(ctx, entityType, eventType, payload)
	if err != nil {
		return nil, err
	}

	contextData := map[string]any{
		"source":      "event",
		"entity_type": entityType,
		"event_type":  eventType,
	}

	return m.runBatch(ctx, ids, payload, contextData, m.batchSize), nil
}

// TriggerOutcome reports one trigger handled by a ProcessDue pass.
type TriggerOutcome struct {
	TriggerID   string
	WorkflowID  string
	ExecutionID string
	Error       string
}

// ProcessSummary aggregates one ProcessDue pass.
type ProcessSummary struct {
	Checked  int
	Fired    int
	Outcomes []TriggerOutcome
}

// ProcessDue fires every active time trigger whose schedule has elapsed
// since it last fired. Triggers with unparsable schedule expressions are
// skipped with a warning so one bad record cannot stall the scheduler.
func (m *TriggerManager) ProcessDue(ctx context.Context, triggerType *models.TriggerType) (*ProcessSummary, error) {
	if triggerType == nil {
		timeType := models.TriggerTypeTime
		triggerType = &timeType
	}

	triggers, err := m.persistence.Triggers().ListActive(ctx, triggerType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &ProcessSummary{}

	for _, trigger := range triggers {
		if trigger.ScheduleExpression == "" {
			continue
		}

		summary.Checked++

		schedule, err := cron.ParseStandard(trigger.ScheduleExpression)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping trigger with invalid schedule",
				"trigger_id", trigger.ID,
				"workflow_id", trigger.WorkflowID,
				"schedule", trigger.ScheduleExpression,
				"error", err)

			continue
		}

		from := now.Add(-scheduleLookback)
		if trigger.LastFiredAt != nil {
			from = *trigger.LastFiredAt
		}

		if schedule.Next(from).After(now) {
			continue
		}

		outcome := TriggerOutcome{TriggerID: trigger.ID, WorkflowID: trigger.WorkflowID}

		if err := m.persistence.Triggers().MarkFired(ctx, trigger.ID, now); err != nil {
			outcome.Error = err.Error()
			summary.Outcomes = append(summary.Outcomes, outcome)

			continue
		}

		execution, err := m.orchestrator.ExecuteWorkflow(ctx, trigger.WorkflowID,
			map[string]any{
				"trigger_id":   trigger.ID,
				"trigger_type": string(trigger.TriggerType),
				"scheduled_at": now.Format(time.RFC3339),
			},
			map[string]any{"source": "schedule"})
		if err != nil {
			outcome.Error = err.Error()
			m.logger.ErrorContext(ctx, "Scheduled execution failed to start",
				"trigger_id", trigger.ID,
				"workflow_id", trigger.WorkflowID,
				"error", err)
		} else {
			outcome.ExecutionID = execution.ID
			summary.Fired++
		}

		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	return summary, nil
}

// ProcessBatch executes a set of workflows against shared facts in chunks,
// pausing between chunks to avoid starving concurrent work.
func (m *TriggerManager) ProcessBatch(ctx context.Context, workflowIDs []string, triggerData map[string]any, batchSize int) []*models.WorkflowExecution {
	if batchSize <= 0 {
		batchSize = m.batchSize
	}

	return m.runBatch(ctx, workflowIDs, triggerData, map[string]any{"source": "batch"}, batchSize)
}

func (m *TriggerManager) runBatch(ctx context.Context, workflowIDs []string, triggerData, contextData map[string]any, batchSize int) []*models.WorkflowExecution {
	executions := make([]*models.WorkflowExecution, 0, len(workflowIDs))

	for i, id := range workflowIDs {
		if i > 0 && i%batchSize == 0 && m.batchPause > 0 {
			select {
			case <-ctx.Done():
				return executions
			case <-time.After(m.batchPause):
			}
		}

		execution, err := m.orchestrator.ExecuteWorkflow(ctx, id, triggerData, contextData)
		if err != nil {
			m.logger.ErrorContext(ctx, "Workflow execution failed to start",
				"workflow_id", id, "error", err)

			continue
		}

		executions = append(executions, execution)
	}

	return executions
}
