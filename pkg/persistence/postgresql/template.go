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

// TemplateRepository handles workflow-template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	templateDataJSON, err := json.Marshal(template.TemplateData)
	if err != nil {
		return fmt.Errorf("failed to marshal template data: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (id, name, description, category, template_data,
			usage_count, is_public, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			template_data = EXCLUDED.template_data,
			is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		template.Category,
		templateDataJSON,
		template.UsageCount,
		template.IsPublic,
		template.Owner,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, description, category, template_data,
			usage_count, is_public, owner, created_at, updated_at
		FROM workflow_templates
		WHERE id = $1
	`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context, filter persistence.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, description, category, template_data,
			usage_count, is_public, owner, created_at, updated_at
		FROM workflow_templates
		WHERE 1=1
	`

	args := make([]any, 0, 2)

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	if filter.PublicOnly {
		query += " AND is_public = true"
	}

	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// IncrementUsage bumps the usage counter after a successful instantiation.
func (r *TemplateRepository) IncrementUsage(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_templates SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to increment template usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTemplateNotFound
	}

	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTemplateNotFound
	}

	return nil
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template         models.WorkflowTemplate
		category         sql.NullString
		templateDataJSON []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&category,
		&templateDataJSON,
		&template.UsageCount,
		&template.IsPublic,
		&template.Owner,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	template.Category = category.String

	if len(templateDataJSON) > 0 {
		if err := json.Unmarshal(templateDataJSON, &template.TemplateData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template data: %w", err)
		}
	}

	return &template, nil
}
