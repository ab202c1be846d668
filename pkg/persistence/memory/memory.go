// Package memory provides an in-memory persistence implementation for tests
// and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

// Store keeps all record collections in process memory behind one mutex.
// Save operations either apply fully or not at all, mirroring the
// transactional guarantee of the SQL implementation.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.WorkflowExecution
	templates  map[string]*models.WorkflowTemplate
	failures   map[string]error
}

func NewStore() *Store {
	return &Store{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.WorkflowExecution),
		templates:  make(map[string]*models.WorkflowTemplate),
		failures:   make(map[string]error),
	}
}

// FailNext makes the next call of the named operation return err instead of
// applying. Used by tests to exercise partial-failure paths.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)

		return err
	}

	return nil
}

func (s *Store) Workflows() persistence.WorkflowRepository   { return &workflowRepository{s} }
func (s *Store) Executions() persistence.ExecutionRepository { return &executionRepository{s} }
func (s *Store) Triggers() persistence.TriggerRepository     { return &triggerRepository{s} }
func (s *Store) Templates() persistence.TemplateRepository   { return &templateRepository{s} }

func (s *Store) HealthCheck(_ context.Context) error { return nil }

func (s *Store) Close(_ context.Context) error { return nil }

type workflowRepository struct {
	store *Store
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.failure("SaveWorkflow"); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	r.store.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if err := r.store.failure("GetWorkflow"); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	workflow, ok := r.store.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(workflow), nil
}

func (r *workflowRepository) List(_ context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matches := make([]*models.Workflow, 0)

	for _, workflow := range r.store.workflows {
		if filter.ActiveOnly && !workflow.Active {
			continue
		}

		if filter.TriggerType != nil && workflow.TriggerType != *filter.TriggerType {
			continue
		}

		if filter.Owner != "" && workflow.Owner != filter.Owner {
			continue
		}

		matches = append(matches, cloneWorkflow(workflow))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}

		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}

		return strings.Compare(matches[i].ID, matches[j].ID) < 0
	})

	return matches, nil
}

func (r *workflowRepository) SetActive(_ context.Context, id string, active bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[id]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	workflow.Active = active
	workflow.UpdatedAt = time.Now().UTC()

	for _, trigger := range workflow.Triggers {
		trigger.Active = active
	}

	return nil
}

func (r *workflowRepository) UpdateStats(_ context.Context, id string, executionCount int, successRate float64, lastExecutedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[id]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	workflow.ExecutionCount = executionCount
	workflow.SuccessRate = successRate
	workflow.LastExecutedAt = &lastExecutedAt

	return nil
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.store.workflows, id)

	// Cascade the execution history.
	for executionID, execution := range r.store.executions {
		if execution.WorkflowID == id {
			delete(r.store.executions, executionID)
		}
	}

	return nil
}

type executionRepository struct {
	store *Store
}

func (r *executionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.failure("CreateExecution"); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	r.store.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	execution, ok := r.store.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return cloneExecution(execution), nil
}

func (r *executionRepository) Update(_ context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.failure("UpdateExecution"); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	current, ok := r.store.executions[execution.ID]
	if !ok {
		return persistence.ErrExecutionNotFound
	}

	if current.Status.Terminal() {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionFinished)
	}

	r.store.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (r *executionRepository) List(_ context.Context, filter persistence.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matches := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.store.executions {
		if filter.WorkflowID != "" && execution.WorkflowID != filter.WorkflowID {
			continue
		}

		matches = append(matches, cloneExecution(execution))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].StartedAt.Equal(matches[j].StartedAt) {
			return matches[i].ID > matches[j].ID
		}

		return matches[i].StartedAt.After(matches[j].StartedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []*models.WorkflowExecution{}, nil
		}

		matches = matches[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}

	return matches, nil
}

func (r *executionRepository) CountByStatus(_ context.Context, workflowID string) (map[models.ExecutionStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[models.ExecutionStatus]int)

	for _, execution := range r.store.executions {
		if execution.WorkflowID == workflowID {
			counts[execution.Status]++
		}
	}

	return counts, nil
}

type triggerRepository struct {
	store *Store
}

func (r *triggerRepository) ListActive(_ context.Context, triggerType *models.TriggerType) ([]*models.WorkflowTrigger, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matches := make([]*models.WorkflowTrigger, 0)

	for _, workflow := range r.store.workflows {
		if !workflow.Active {
			continue
		}

		for _, trigger := range workflow.Triggers {
			if !trigger.Active {
				continue
			}

			if triggerType != nil && trigger.TriggerType != *triggerType {
				continue
			}

			matches = append(matches, cloneTrigger(trigger))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

func (r *triggerRepository) MarkFired(_ context.Context, id string, firedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, workflow := range r.store.workflows {
		for _, trigger := range workflow.Triggers {
			if trigger.ID == id {
				fired := firedAt
				trigger.LastFiredAt = &fired

				return nil
			}
		}
	}

	return persistence.ErrTriggerNotFound
}

type templateRepository struct {
	store *Store
}

func (r *templateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.failure("SaveTemplate"); err != nil {
		return err
	}

	r.store.templates[template.ID] = cloneTemplate(template)

	return nil
}

func (r *templateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	template, ok := r.store.templates[id]
	if !ok {
		return nil, persistence.ErrTemplateNotFound
	}

	return cloneTemplate(template), nil
}

func (r *templateRepository) List(_ context.Context, filter persistence.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matches := make([]*models.WorkflowTemplate, 0)

	for _, template := range r.store.templates {
		if filter.Category != "" && template.Category != filter.Category {
			continue
		}

		if filter.Owner != "" && template.Owner != filter.Owner {
			continue
		}

		if filter.PublicOnly && !template.IsPublic {
			continue
		}

		matches = append(matches, cloneTemplate(template))
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}

func (r *templateRepository) IncrementUsage(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, ok := r.store.templates[id]
	if !ok {
		return persistence.ErrTemplateNotFound
	}

	template.UsageCount++
	template.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *templateRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.templates[id]; !ok {
		return persistence.ErrTemplateNotFound
	}

	delete(r.store.templates, id)

	return nil
}
