package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , trigger_type
  , trigger_config
  , conditions
  , active
  , priority
  , owner
  , execution_count
  , success_rate
  , last_executed_at
  , created_at
  , updated_at
`

// Save persists the workflow row and its trigger/action sub-records as a
// single atomic unit. Existing sub-records are replaced.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal trigger config: %w", err))
	}

	conditionsJSON, err := marshalConditions(workflow.Conditions)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	workflowQuery := `
		INSERT INTO workflows (id, name, description, trigger_type, trigger_config, conditions,
			active, priority, owner, execution_count, success_rate, last_executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		triggerConfigJSON,
		conditionsJSON,
		workflow.Active,
		workflow.Priority,
		workflow.Owner,
		workflow.ExecutionCount,
		workflow.SuccessRate,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to save workflow base: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_triggers WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to delete existing triggers: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_actions WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to delete existing actions: %w", err))
	}

	if err = r.saveTriggers(ctx, tx, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err = r.saveActions(ctx, tx, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (r *WorkflowRepository) saveTriggers(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_triggers (id, workflow_id, trigger_type, entity_type, event_type,
			conditions, schedule_expression, active, last_fired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, trigger := range workflow.Triggers {
		conditionsJSON, err := marshalConditions(trigger.Conditions)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query,
			trigger.ID,
			workflow.ID,
			trigger.TriggerType,
			trigger.EntityType,
			trigger.EventType,
			conditionsJSON,
			trigger.ScheduleExpression,
			trigger.Active,
			trigger.LastFiredAt,
			trigger.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) saveActions(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_actions (id, workflow_id, action_type, configuration,
			critical, max_retries, timeout_ms, execution_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, action := range workflow.Actions {
		configJSON, err := json.Marshal(action.Configuration)
		if err != nil {
			return fmt.Errorf("failed to marshal action configuration: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			action.ID,
			workflow.ID,
			action.Type,
			configJSON,
			action.Critical,
			action.MaxRetries,
			action.Timeout.Milliseconds(),
			action.ExecutionOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to save action %s: %w", action.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if err := r.loadChildren(ctx, workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1=1`

	args := make([]any, 0, 3)

	if filter.ActiveOnly {
		query += " AND active = true"
	}

	if filter.TriggerType != nil {
		args = append(args, *filter.TriggerType)
		query += fmt.Sprintf(" AND trigger_type = $%d", len(args))
	}

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	query += " ORDER BY priority DESC, created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		if err := r.loadChildren(ctx, workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow children: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET active = $1, updated_at = NOW() WHERE id = $2", active, id)
	if err != nil {
		return persistence.NewWorkflowError("SetActive", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("SetActive", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE workflow_triggers SET active = $1 WHERE workflow_id = $2", active, id)
	if err != nil {
		return persistence.NewWorkflowError("SetActive", id, err)
	}

	return nil
}

func (r *WorkflowRepository) UpdateStats(ctx context.Context, id string, executionCount int, successRate float64, lastExecutedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows
		SET execution_count = $1, success_rate = $2, last_executed_at = $3
		WHERE id = $4
	`, executionCount, successRate, lastExecutedAt, id)
	if err != nil {
		return persistence.NewWorkflowError("UpdateStats", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("UpdateStats", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// Delete removes the workflow; triggers, actions and executions cascade via
// foreign keys.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow          models.Workflow
		triggerConfigJSON []byte
		conditionsJSON    []byte
		lastExecutedAt    sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&triggerConfigJSON,
		&conditionsJSON,
		&workflow.Active,
		&workflow.Priority,
		&workflow.Owner,
		&workflow.ExecutionCount,
		&workflow.SuccessRate,
		&lastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConfigJSON) > 0 {
		if err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	workflow.Conditions, err = unmarshalConditions(conditionsJSON)
	if err != nil {
		return nil, err
	}

	if lastExecutedAt.Valid {
		workflow.LastExecutedAt = &lastExecutedAt.Time
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadChildren(ctx context.Context, workflow *models.Workflow) error {
	if err := r.loadTriggers(ctx, workflow); err != nil {
		return err
	}

	return r.loadActions(ctx, workflow)
}

func (r *WorkflowRepository) loadTriggers(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT id, trigger_type, entity_type, event_type, conditions,
			schedule_expression, active, last_fired_at, created_at
		FROM workflow_triggers
		WHERE workflow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow triggers: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Triggers = make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows, workflow.ID)
		if err != nil {
			return err
		}

		workflow.Triggers = append(workflow.Triggers, trigger)
	}

	return rows.Err()
}

func (r *WorkflowRepository) loadActions(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT id, action_type, configuration, critical, max_retries, timeout_ms, execution_order
		FROM workflow_actions
		WHERE workflow_id = $1
		ORDER BY execution_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Actions = make([]*models.WorkflowAction, 0)

	for rows.Next() {
		var (
			action     models.WorkflowAction
			configJSON []byte
			timeoutMS  int64
		)

		err := rows.Scan(
			&action.ID,
			&action.Type,
			&configJSON,
			&action.Critical,
			&action.MaxRetries,
			&timeoutMS,
			&action.ExecutionOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}

		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &action.Configuration); err != nil {
				return fmt.Errorf("failed to unmarshal action configuration: %w", err)
			}
		}

		action.WorkflowID = workflow.ID
		action.Timeout = time.Duration(timeoutMS) * time.Millisecond

		workflow.Actions = append(workflow.Actions, &action)
	}

	return rows.Err()
}

func scanTrigger(row rowScanner, workflowID string) (*models.WorkflowTrigger, error) {
	var (
		trigger        models.WorkflowTrigger
		entityType     sql.NullString
		eventType      sql.NullString
		conditionsJSON []byte
		schedule       sql.NullString
		lastFiredAt    sql.NullTime
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.TriggerType,
		&entityType,
		&eventType,
		&conditionsJSON,
		&schedule,
		&trigger.Active,
		&lastFiredAt,
		&trigger.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	trigger.WorkflowID = workflowID
	trigger.EntityType = entityType.String
	trigger.EventType = eventType.String
	trigger.ScheduleExpression = schedule.String

	trigger.Conditions, err = unmarshalConditions(conditionsJSON)
	if err != nil {
		return nil, err
	}

	if lastFiredAt.Valid {
		trigger.LastFiredAt = &lastFiredAt.Time
	}

	return &trigger, nil
}

func marshalConditions(conditions *models.Condition) ([]byte, error) {
	if conditions == nil {
		return nil, nil
	}

	data, err := json.Marshal(conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}

	return data, nil
}

func unmarshalConditions(data []byte) (*models.Condition, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var conditions models.Condition
	if err := json.Unmarshal(data, &conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	return &conditions, nil
}
