package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// TemplateService manages reusable workflow templates and instantiates them
// into concrete workflows.
type TemplateService struct {
	persistence persistence.Persistence
	service     *Service
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewTemplateService(p persistence.Persistence, service *Service, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		persistence: p,
		service:     service,
		validate:    validator.New(),
		logger:      logger.With("module", "templates"),
	}
}

// Create validates and persists a template.
func (t *TemplateService) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if err := t.validate.Struct(template); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	now := time.Now().UTC()

	template.ID = uuid.Must(uuid.NewV7()).String()
	template.UsageCount = 0
	template.CreatedAt = now
	template.UpdatedAt = now

	if err := t.persistence.Templates().Save(ctx, template); err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "Created template",
		"template_id", template.ID,
		"name", template.Name,
		"category", template.Category)

	return template, nil
}

// Get returns a template by id.
func (t *TemplateService) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return t.persistence.Templates().GetByID(ctx, id)
}

// List returns templates matching the filter.
func (t *TemplateService) List(ctx context.Context, filter persistence.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	return t.persistence.Templates().List(ctx, filter)
}

// Delete removes a template. The requesting owner must match.
func (t *TemplateService) Delete(ctx context.Context, id, owner string) error {
	template, err := t.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if owner != "" && template.Owner != owner {
		return ErrPermissionDenied
	}

	return t.persistence.Templates().Delete(ctx, id)
}

// Instantiate builds a workflow from a template, with caller overrides
// replacing template fields one by one at the top level. The template usage
// counter only moves when the workflow was actually created.
func (t *TemplateService) Instantiate(ctx context.Context, templateID string, overrides map[string]any, owner string) (*models.Workflow, error) {
	template, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if !template.IsPublic && owner != "" && template.Owner != owner {
		return nil, ErrPermissionDenied
	}

	merged := make(map[string]any, len(template.TemplateData)+len(overrides))

	for k, v := range template.TemplateData {
		merged[k] = v
	}

	for k, v := range overrides {
		merged[k] = v
	}

	workflow, err := workflowFromTemplateData(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %w", ErrInvalidWorkflow, templateID, err)
	}

	workflow.Owner = owner
	if workflow.Owner == "" {
		workflow.Owner = template.Owner
	}

	created, err := t.service.Create(ctx, workflow)
	if err != nil {
		return nil, err
	}

	if err := t.persistence.Templates().IncrementUsage(ctx, templateID); err != nil {
		t.logger.WarnContext(ctx, "Template usage increment failed",
			"template_id", templateID, "error", err)
	}

	t.logger.InfoContext(ctx, "Instantiated template",
		"template_id", templateID,
		"workflow_id", created.ID)

	return created, nil
}

// workflowFromTemplateData decodes a template payload into a workflow spec.
// Identity, aggregates and timestamps never come from a template.
func workflowFromTemplateData(data map[string]any) (*models.Workflow, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow

	if err := json.Unmarshal(payload, &workflow); err != nil {
		return nil, err
	}

	workflow.ID = ""
	workflow.ExecutionCount = 0
	workflow.SuccessRate = 0
	workflow.LastExecutedAt = nil
	workflow.CreatedAt = time.Time{}
	workflow.UpdatedAt = time.Time{}

	return &workflow, nil
}
