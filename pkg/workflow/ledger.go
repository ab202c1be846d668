package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaycrm/automation/pkg/cache"
	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// Ledger is the single writer for execution records and the derived workflow
// aggregates. All status transitions go through it so the pending -> running
// -> terminal state machine is enforced in one place.
type Ledger struct {
	persistence persistence.Persistence
	cache       cache.Cache
	logger      *slog.Logger
}

func NewLedger(p persistence.Persistence, c cache.Cache, logger *slog.Logger) *Ledger {
	return &Ledger{
		persistence: p,
		cache:       c,
		logger:      logger.With("module", "ledger"),
	}
}

// Begin appends a new pending execution record for the workflow.
func (l *Ledger) Begin(ctx context.Context, workflowID string, triggerData, contextData map[string]any) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{
		ID:          uuid.Must(uuid.NewV7()).String(),
		WorkflowID:  workflowID,
		TriggerData: triggerData,
		ContextData: contextData,
		Status:      models.ExecutionStatusPending,
		StartedAt:   time.Now().UTC(),
	}

	if err := l.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, persistence.NewExecutionError("begin", execution.ID, err)
	}

	return execution, nil
}

// MarkRunning transitions a pending execution to running.
func (l *Ledger) MarkRunning(ctx context.Context, execution *models.WorkflowExecution) error {
	if !execution.Status.CanTransitionTo(models.ExecutionStatusRunning) {
		return persistence.NewExecutionError("mark_running", execution.ID, persistence.ErrExecutionFinished)
	}

	execution.Status = models.ExecutionStatusRunning

	if err := l.persistence.Executions().Update(ctx, execution); err != nil {
		return persistence.NewExecutionError("mark_running", execution.ID, err)
	}

	return nil
}

// Finish moves an execution to a terminal status exactly once and records
// the completion time. A second Finish on the same execution fails.
func (l *Ledger) Finish(ctx context.Context, execution *models.WorkflowExecution, status models.ExecutionStatus, errorMessage string) error {
	if !status.Terminal() {
		return persistence.NewExecutionError("finish", execution.ID, persistence.ErrExecutionFinished)
	}

	if !execution.Status.CanTransitionTo(status) {
		return persistence.NewExecutionError("finish", execution.ID, persistence.ErrExecutionFinished)
	}

	now := time.Now().UTC()

	execution.Status = status
	execution.CompletedAt = &now
	execution.ErrorMessage = errorMessage

	if err := l.persistence.Executions().Update(ctx, execution); err != nil {
		return persistence.NewExecutionError("finish", execution.ID, err)
	}

	return nil
}

// GetExecution returns a single execution record.
func (l *Ledger) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return l.persistence.Executions().GetByID(ctx, id)
}

// ListExecutions returns execution history, newest first.
func (l *Ledger) ListExecutions(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	return l.persistence.Executions().List(ctx, filter)
}

// RecomputeStats recalculates a workflow's aggregates from its terminal
// executions. The execution count and the success rate denominator are both
// the number of terminal executions: a cancelled run counts as a run that
// did not succeed.
func (l *Ledger) RecomputeStats(ctx context.Context, workflowID string) error {
	counts, err := l.persistence.Executions().CountByStatus(ctx, workflowID)
	if err != nil {
		return persistence.NewWorkflowError("recompute_stats", workflowID, err)
	}

	completed := counts[models.ExecutionStatusCompleted]
	terminal := completed +
		counts[models.ExecutionStatusFailed] +
		counts[models.ExecutionStatusCancelled]

	if terminal == 0 {
		return nil
	}

	successRate := 100 * float64(completed) / float64(terminal)

	err = l.persistence.Workflows().UpdateStats(ctx, workflowID, terminal, successRate, time.Now().UTC())
	if err != nil {
		return persistence.NewWorkflowError("recompute_stats", workflowID, err)
	}

	// Cached copies carry the old aggregates until they are dropped.
	if err := l.cache.Delete(ctx, cache.WorkflowKey(workflowID), cache.ActiveWorkflowsKey); err != nil {
		l.logger.WarnContext(ctx, "Cache invalidation failed", "workflow_id", workflowID, "error", err)
	}

	l.logger.DebugContext(ctx, "Recomputed workflow stats",
		"workflow_id", workflowID,
		"execution_count", terminal,
		"success_rate", successRate)

	return nil
}
