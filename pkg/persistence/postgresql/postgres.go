// Package postgresql provides PostgreSQL-backed persistence for the workflow
// automation engine.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/relaycrm/automation/pkg/persistence"
	"github.com/relaycrm/automation/pkg/persistence/sqlbase"
)

// Persistence is the PostgreSQL implementation of persistence.Persistence.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	triggers   *TriggerRepository
	templates  *TemplateRepository
}

// NewPersistence opens a connection pool, runs pending migrations and wires
// the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	migrator := sqlbase.NewMigrationManager(logger, db, migrations())
	if err := migrator.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:         db,
		logger:     logger,
		workflows:  NewWorkflowRepository(db, logger),
		executions: NewExecutionRepository(db, logger),
		triggers:   NewTriggerRepository(db, logger),
		templates:  NewTemplateRepository(db, logger),
	}, nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Triggers() persistence.TriggerRepository     { return p.triggers }
func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templates }

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
