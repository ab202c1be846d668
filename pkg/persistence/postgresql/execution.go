package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// ExecutionRepository handles execution-record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerDataJSON, contextDataJSON, logJSON, actionsJSON, err := marshalExecutionBlobs(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, trigger_data, context_data,
			status, started_at, completed_at, error_message, execution_log, actions_executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		triggerDataJSON,
		contextDataJSON,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		nullableString(execution.ErrorMessage),
		logJSON,
		actionsJSON,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, trigger_data, context_data, status,
			started_at, completed_at, error_message, execution_log, actions_executed
		FROM workflow_executions
		WHERE id = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Update rewrites a non-terminal execution record. Guarding on status in the
// WHERE clause keeps terminal states final even under a racing writer.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerDataJSON, contextDataJSON, logJSON, actionsJSON, err := marshalExecutionBlobs(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE workflow_executions
		SET trigger_data = $1, context_data = $2, status = $3, completed_at = $4,
			error_message = $5, execution_log = $6, actions_executed = $7
		WHERE id = $8 AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	result, err := r.db.ExecContext(ctx, query,
		triggerDataJSON,
		contextDataJSON,
		execution.Status,
		execution.CompletedAt,
		nullableString(execution.ErrorMessage),
		logJSON,
		actionsJSON,
		execution.ID,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		current, err := r.GetByID(ctx, execution.ID)
		if err != nil {
			return err
		}

		if current.Status.Terminal() {
			return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionFinished)
		}

		return persistence.ErrExecutionNotFound
	}

	return nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, trigger_data, context_data, status,
			started_at, completed_at, error_message, execution_log, actions_executed
		FROM workflow_executions
	`

	args := make([]any, 0, 3)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += fmt.Sprintf(" WHERE workflow_id = $%d", len(args))
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) CountByStatus(ctx context.Context, workflowID string) (map[models.ExecutionStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM workflow_executions
		WHERE workflow_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make(map[models.ExecutionStatus]int)

	for rows.Next() {
		var (
			status models.ExecutionStatus
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}

		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

func marshalExecutionBlobs(execution *models.WorkflowExecution) (triggerData, contextData, executionLog, actions []byte, err error) {
	triggerData, err = json.Marshal(execution.TriggerData)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	contextData, err = json.Marshal(execution.ContextData)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal context data: %w", err)
	}

	executionLog, err = json.Marshal(execution.ExecutionLog)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal execution log: %w", err)
	}

	actions, err = json.Marshal(execution.ActionsExecuted)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal actions executed: %w", err)
	}

	return triggerData, contextData, executionLog, actions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution       models.WorkflowExecution
		triggerDataJSON []byte
		contextDataJSON []byte
		completedAt     sql.NullTime
		errorMessage    sql.NullString
		logJSON         []byte
		actionsJSON     []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&triggerDataJSON,
		&contextDataJSON,
		&execution.Status,
		&execution.StartedAt,
		&completedAt,
		&errorMessage,
		&logJSON,
		&actionsJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerDataJSON) > 0 {
		if err := json.Unmarshal(triggerDataJSON, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if len(contextDataJSON) > 0 {
		if err := json.Unmarshal(contextDataJSON, &execution.ContextData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context data: %w", err)
		}
	}

	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &execution.ExecutionLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
		}
	}

	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &execution.ActionsExecuted); err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions executed: %w", err)
		}
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	execution.ErrorMessage = errorMessage.String

	return &execution, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
