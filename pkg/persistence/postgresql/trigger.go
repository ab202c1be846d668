package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// TriggerRepository reads trigger bindings across workflows for matching and
// scheduling.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

func (r *TriggerRepository) ListActive(ctx context.Context, triggerType *models.TriggerType) ([]*models.WorkflowTrigger, error) {
	query := `
		SELECT t.id, t.trigger_type, t.entity_type, t.event_type, t.conditions,
			t.schedule_expression, t.active, t.last_fired_at, t.created_at, t.workflow_id
		FROM workflow_triggers t
		JOIN workflows w ON w.id = t.workflow_id
		WHERE t.active = true AND w.active = true
	`

	args := make([]any, 0, 1)

	if triggerType != nil {
		args = append(args, *triggerType)
		query += fmt.Sprintf(" AND t.trigger_type = $%d", len(args))
	}

	query += " ORDER BY t.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		var (
			trigger        models.WorkflowTrigger
			entityType     sql.NullString
			eventType      sql.NullString
			conditionsJSON []byte
			schedule       sql.NullString
			lastFiredAt    sql.NullTime
		)

		err := rows.Scan(
			&trigger.ID,
			&trigger.TriggerType,
			&entityType,
			&eventType,
			&conditionsJSON,
			&schedule,
			&trigger.Active,
			&lastFiredAt,
			&trigger.CreatedAt,
			&trigger.WorkflowID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

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

		triggers = append(triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *TriggerRepository) MarkFired(ctx context.Context, id string, firedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_triggers SET last_fired_at = $1 WHERE id = $2", firedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark trigger fired: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}
