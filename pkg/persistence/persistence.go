// Package persistence provides the data storage abstraction for workflows,
// executions, triggers and templates.
package persistence

import (
	"context"
	"time"

	"github.com/relaycrm/automation/pkg/models"
)

// Persistence aggregates the record collections the engine reads and writes.
// Implementations must guarantee that a workflow and its trigger/action
// sub-records are saved atomically: readers never observe a workflow with
// some but not all of its children.
type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Triggers() TriggerRepository
	Templates() TemplateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter narrows workflow listings.
type WorkflowFilter struct {
	TriggerType *models.TriggerType
	Owner       string
	ActiveOnly  bool
}

// WorkflowRepository persists workflow definitions with their trigger and
// action sub-records.
type WorkflowRepository interface {
	// Save inserts or replaces a workflow and all of its sub-records as one
	// atomic unit.
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// List returns workflows ordered by priority descending, creation
	// ascending.
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	// UpdateStats writes the derived aggregates recomputed by the execution
	// ledger.
	UpdateStats(ctx context.Context, id string, executionCount int, successRate float64, lastExecutedAt time.Time) error
	// Delete removes the workflow and cascades its triggers, actions and
	// execution history.
	Delete(ctx context.Context, id string) error
}

// ExecutionFilter narrows execution listings.
type ExecutionFilter struct {
	WorkflowID string
	Limit      int
	Offset     int
}

// ExecutionRepository persists execution records, append-then-update with a
// single writer per execution id.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	// List returns executions newest first.
	List(ctx context.Context, filter ExecutionFilter) ([]*models.WorkflowExecution, error)
	// CountByStatus returns the number of executions per status for one
	// workflow, feeding the stats recomputation.
	CountByStatus(ctx context.Context, workflowID string) (map[models.ExecutionStatus]int, error)
}

// TriggerRepository reads trigger bindings across workflows for matching and
// scheduling.
type TriggerRepository interface {
	// ListActive returns active triggers, optionally filtered by trigger
	// type, belonging to active workflows only.
	ListActive(ctx context.Context, triggerType *models.TriggerType) ([]*models.WorkflowTrigger, error)
	MarkFired(ctx context.Context, id string, firedAt time.Time) error
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Category   string
	Owner      string
	PublicOnly bool
}

// TemplateRepository persists workflow templates.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, filter TemplateFilter) ([]*models.WorkflowTemplate, error)
	IncrementUsage(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
