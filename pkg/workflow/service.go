package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/relaycrm/automation/pkg/cache"
	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

const workflowCacheTTL = 5 * time.Minute

// Service manages workflow definitions: validation, persistence and the
// cache in front of reads. Lookups hit the cache first; every write
// invalidates the affected entries.
type Service struct {
	persistence persistence.Persistence
	cache       cache.Cache
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, c cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		cache:       c,
		validate:    validator.New(),
		logger:      logger.With("module", "workflow_service"),
	}
}

// Create validates a workflow spec, assigns identities and defaults, and
// persists it atomically with its trigger and action sub-records. Nothing is
// written when validation fails.
func (s *Service) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := s.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	workflow.ID = uuid.Must(uuid.NewV7()).String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ExecutionCount = 0
	workflow.SuccessRate = 0
	workflow.LastExecutedAt = nil

	s.prepareActions(workflow)

	if len(workflow.Triggers) == 0 {
		workflow.Triggers = []*models.WorkflowTrigger{deriveTrigger(workflow, now)}
	}

	for _, trigger := range workflow.Triggers {
		if trigger.ID == "" {
			trigger.ID = uuid.Must(uuid.NewV7()).String()
		}

		trigger.WorkflowID = workflow.ID

		if trigger.CreatedAt.IsZero() {
			trigger.CreatedAt = now
		}
	}

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, persistence.NewWorkflowError("create", workflow.ID, err)
	}

	s.invalidate(ctx, workflow.ID)

	s.logger.InfoContext(ctx, "Created workflow",
		"workflow_id", workflow.ID,
		"name", workflow.Name,
		"trigger_type", workflow.TriggerType,
		"actions", len(workflow.Actions))

	return workflow, nil
}

// Get returns a workflow by id, served from the cache when possible.
func (s *Service) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var cached models.Workflow

	hit, err := s.cache.Get(ctx, cache.WorkflowKey(id), &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "Workflow cache read failed", "workflow_id", id, "error", err)
	}

	if hit {
		return &cached, nil
	}

	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cache.WorkflowKey(id), workflow, workflowCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "Workflow cache write failed", "workflow_id", id, "error", err)
	}

	return workflow, nil
}

// List returns workflows matching the filter, priority descending. The
// plain active listing is served from the cache.
func (s *Service) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	cacheable := filter.ActiveOnly && filter.Owner == "" && filter.TriggerType == nil

	if cacheable {
		var cached []*models.Workflow

		hit, err := s.cache.Get(ctx, cache.ActiveWorkflowsKey, &cached)
		if err != nil {
			s.logger.WarnContext(ctx, "Active workflow cache read failed", "error", err)
		}

		if hit {
			return cached, nil
		}
	}

	workflows, err := s.persistence.Workflows().List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, cache.ActiveWorkflowsKey, workflows, workflowCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "Active workflow cache write failed", "error", err)
		}
	}

	return workflows, nil
}

// UpdateRequest carries a partial workflow update. Nil fields are left
// untouched; aggregates and ownership can never be updated through it.
type UpdateRequest struct {
	Name          *string
	Description   *string
	Priority      *int
	TriggerType   *models.TriggerType
	TriggerConfig map[string]any
	Conditions    *models.Condition
	Actions       []*models.WorkflowAction
	Triggers      []*models.WorkflowTrigger
}

// Update applies a partial update and persists the result atomically.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Workflow, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.Priority != nil {
		workflow.Priority = *req.Priority
	}

	if req.TriggerType != nil {
		workflow.TriggerType = *req.TriggerType
	}

	if req.TriggerConfig != nil {
		workflow.TriggerConfig = req.TriggerConfig
	}

	if req.Conditions != nil {
		workflow.Conditions = req.Conditions
	}

	if req.Actions != nil {
		workflow.Actions = req.Actions
	}

	if req.Triggers != nil {
		workflow.Triggers = req.Triggers

		now := time.Now().UTC()

		for _, trigger := range workflow.Triggers {
			if trigger.ID == "" {
				trigger.ID = uuid.Must(uuid.NewV7()).String()
			}

			trigger.WorkflowID = workflow.ID

			if trigger.CreatedAt.IsZero() {
				trigger.CreatedAt = now
			}
		}
	}

	if err := s.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	s.prepareActions(workflow)

	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, persistence.NewWorkflowError("update", id, err)
	}

	s.invalidate(ctx, id)

	return workflow, nil
}

// SetActive enables or disables a workflow without touching its definition.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.persistence.Workflows().SetActive(ctx, id, active); err != nil {
		return persistence.NewWorkflowError("set_active", id, err)
	}

	s.invalidate(ctx, id)

	s.logger.InfoContext(ctx, "Toggled workflow", "workflow_id", id, "active", active)

	return nil
}

// Delete removes a workflow and its execution history. The requesting owner
// must match the record's owner.
func (s *Service) Delete(ctx context.Context, id, owner string) error {
	workflow, err := s.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if owner != "" && workflow.Owner != owner {
		return persistence.NewWorkflowError("delete", id, ErrPermissionDenied)
	}

	if err := s.persistence.Workflows().Delete(ctx, id); err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	s.invalidate(ctx, id)

	s.logger.InfoContext(ctx, "Deleted workflow", "workflow_id", id)

	return nil
}

func (s *Service) validateWorkflow(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	if !workflow.TriggerType.Valid() {
		return fmt.Errorf("%w: '%s'", ErrInvalidTriggerType, workflow.TriggerType)
	}

	if len(workflow.Actions) == 0 {
		return ErrNoActions
	}

	ordered := false

	for _, action := range workflow.Actions {
		if action.ExecutionOrder != 0 {
			ordered = true

			break
		}
	}

	if ordered {
		sorted := make([]*models.WorkflowAction, len(workflow.Actions))
		copy(sorted, workflow.Actions)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ExecutionOrder < sorted[j].ExecutionOrder
		})

		for i := 1; i < len(sorted); i++ {
			if sorted[i].ExecutionOrder == sorted[i-1].ExecutionOrder {
				return fmt.Errorf("%w: duplicate order %d", ErrActionOrder, sorted[i].ExecutionOrder)
			}
		}
	}

	return nil
}

// prepareActions assigns action identities, defaults and a strictly
// increasing execution order when the caller left orders unset.
func (s *Service) prepareActions(workflow *models.Workflow) {
	ordered := false

	for _, action := range workflow.Actions {
		if action.ExecutionOrder != 0 {
			ordered = true

			break
		}
	}

	for i, action := range workflow.Actions {
		if action.ID == "" {
			action.ID = uuid.Must(uuid.NewV7()).String()
		}

		action.WorkflowID = workflow.ID

		if !ordered {
			action.ExecutionOrder = i + 1
		}

		if action.MaxRetries <= 0 {
			action.MaxRetries = DefaultMaxRetries
		}

		if action.Timeout <= 0 {
			action.Timeout = DefaultTimeout
		}
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cache.WorkflowKey(id), cache.ActiveWorkflowsKey); err != nil {
		s.logger.WarnContext(ctx, "Cache invalidation failed", "workflow_id", id, "error", err)
	}
}

// deriveTrigger builds the trigger binding implied by the workflow's trigger
// type and config when the caller supplied none.
func deriveTrigger(workflow *models.Workflow, now time.Time) *models.WorkflowTrigger {
	trigger := &models.WorkflowTrigger{
		ID:          uuid.Must(uuid.NewV7()).String(),
		WorkflowID:  workflow.ID,
		TriggerType: workflow.TriggerType,
		Active:      true,
		CreatedAt:   now,
	}

	if entityType, ok := workflow.TriggerConfig["entity_type"].(string); ok {
		trigger.EntityType = entityType
	}

	if eventType, ok := workflow.TriggerConfig["event_type"].(string); ok {
		trigger.EventType = eventType
	}

	if expr, ok := workflow.TriggerConfig["schedule"].(string); ok {
		trigger.ScheduleExpression = expr
	}

	return trigger
}
