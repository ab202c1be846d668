package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/relaycrm/automation/pkg/eventbus"
	"github.com/relaycrm/automation/pkg/events"
	"github.com/relaycrm/automation/pkg/models"
)

// Orchestrator drives one execution through its lifecycle: condition gate,
// ordered action pipeline, terminal status, stats recomputation and outcome
// event. One goroutine owns an execution from Begin to Finish.
type Orchestrator struct {
	service  *Service
	ledger   *Ledger
	executor *Executor

	evaluator *models.ConditionEvaluator
	bus       eventbus.EventBus
	logger    *slog.Logger
}

// NewOrchestrator wires the execution pipeline. The event bus may be nil, in
// which case outcome events are skipped.
func NewOrchestrator(service *Service, ledger *Ledger, executor *Executor, bus eventbus.EventBus, logger *slog.Logger) *Orchestrator {
	log := logger.With("module", "orchestrator")

	return &Orchestrator{
		service:   service,
		ledger:    ledger,
		executor:  executor,
		evaluator: models.NewConditionEvaluator(log),
		bus:       bus,
		logger:    log,
	}
}

// ExecuteWorkflow runs a workflow once against the given facts and returns
// the finished execution record. Action failures do not surface as errors
// here: they are captured in the record. Only infrastructure failures
// (loading the workflow, writing the ledger) return a non-nil error.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, triggerData, contextData map[string]any) (*models.WorkflowExecution, error) {
	workflow, err := o.service.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.Active {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	execution, err := o.ledger.Begin(ctx, workflowID, triggerData, contextData)
	if err != nil {
		return nil, err
	}

	o.publish(ctx, workflow, events.ExecutionStarted{BaseEvent: o.baseEvent(events.ExecutionStartedEvent, execution)})

	if !o.evaluator.Evaluate(workflow.Conditions, execution.Facts()) {
		execution.ExecutionLog = append(execution.ExecutionLog, "Workflow conditions not met, execution cancelled")

		if err := o.ledger.Finish(ctx, execution, models.ExecutionStatusCancelled, ""); err != nil {
			return nil, err
		}

		o.recomputeStats(ctx, workflowID)
		o.publish(ctx, workflow, events.ExecutionCancelled{
			BaseEvent: o.baseEvent(events.ExecutionCancelledEvent, execution),
			Reason:    "conditions not met",
		})

		o.logger.InfoContext(ctx, "Execution cancelled by condition gate",
			"workflow_id", workflowID, "execution_id", execution.ID)

		return execution, nil
	}

	if err := o.ledger.MarkRunning(ctx, execution); err != nil {
		return nil, err
	}

	criticalErr := o.runActions(ctx, workflow, execution)

	status := models.ExecutionStatusCompleted
	errorMessage := ""

	if criticalErr != nil {
		status = models.ExecutionStatusFailed
		errorMessage = criticalErr.Error()
	}

	if err := o.ledger.Finish(ctx, execution, status, errorMessage); err != nil {
		return nil, err
	}

	o.recomputeStats(ctx, workflowID)
	o.publishOutcome(ctx, workflow, execution)

	o.logger.InfoContext(ctx, "Execution finished",
		"workflow_id", workflowID,
		"execution_id", execution.ID,
		"status", execution.Status,
		"actions_executed", len(execution.ActionsExecuted))

	return execution, nil
}

// runActions walks the pipeline in execution order. A non-critical failure
// is recorded and skipped over; a critical failure stops the pipeline and is
// returned.
func (o *Orchestrator) runActions(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) error {
	actions := make([]*models.WorkflowAction, len(workflow.Actions))
	copy(actions, workflow.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].ExecutionOrder < actions[j].ExecutionOrder
	})

	executionCtx := models.ExecutionContext{
		ExecutionID:   execution.ID,
		WorkflowID:    execution.WorkflowID,
		TriggerData:   execution.TriggerData,
		ContextData:   execution.ContextData,
		ActionResults: make(map[string]any, len(actions)),
	}

	for _, action := range actions {
		result, err := o.executor.Execute(ctx, action, executionCtx)

		record := models.ActionRecord{
			Action:     action.Type,
			ExecutedAt: time.Now().UTC(),
		}

		if err != nil {
			record.Status = models.ExecutionStatusFailed
			record.Error = err.Error()
			execution.ActionsExecuted = append(execution.ActionsExecuted, record)
			execution.ExecutionLog = append(execution.ExecutionLog,
				fmt.Sprintf("Action '%s' failed: %v", action.Type, err))

			if action.Critical {
				execution.ExecutionLog = append(execution.ExecutionLog,
					fmt.Sprintf("Critical action '%s' failed, aborting pipeline", action.Type))

				return err
			}

			continue
		}

		record.Status = models.ExecutionStatusCompleted
		record.Result = result
		execution.ActionsExecuted = append(execution.ActionsExecuted, record)
		execution.ExecutionLog = append(execution.ExecutionLog,
			fmt.Sprintf("Action '%s' completed", action.Type))

		executionCtx.ActionResults[action.ID] = result
	}

	return nil
}

func (o *Orchestrator) recomputeStats(ctx context.Context, workflowID string) {
	if err := o.ledger.RecomputeStats(ctx, workflowID); err != nil {
		o.logger.ErrorContext(ctx, "Stats recomputation failed",
			"workflow_id", workflowID, "error", err)
	}
}

func (o *Orchestrator) publishOutcome(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) {
	duration := time.Duration(0)
	if execution.CompletedAt != nil {
		duration = execution.CompletedAt.Sub(execution.StartedAt)
	}

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		o.publish(ctx, workflow, events.ExecutionCompleted{
			BaseEvent:       o.baseEvent(events.ExecutionCompletedEvent, execution),
			ActionsExecuted: len(execution.ActionsExecuted),
			Duration:        duration,
		})
	case models.ExecutionStatusFailed:
		o.publish(ctx, workflow, events.ExecutionFailed{
			BaseEvent: o.baseEvent(events.ExecutionFailedEvent, execution),
			Error:     execution.ErrorMessage,
		})
	}
}

// publish sends an outcome event best-effort. Execution results are already
// durable in the ledger when this runs, so a publish failure is only logged.
func (o *Orchestrator) publish(ctx context.Context, workflow *models.Workflow, event events.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, workflow.ID, event); err != nil {
		o.logger.WarnContext(ctx, "Event publish failed",
			"workflow_id", workflow.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, execution *models.WorkflowExecution) events.BaseEvent {
	id := "evt"
	if o.bus != nil {
		id = o.bus.GenerateID()
	}

	return events.BaseEvent{
		ID:          id,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
	}
}
