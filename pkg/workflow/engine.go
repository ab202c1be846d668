package workflow

import (
	"log/slog"

	"github.com/relaycrm/automation/pkg/cache"
	"github.com/relaycrm/automation/pkg/eventbus"
	"github.com/relaycrm/automation/pkg/persistence"
	"github.com/relaycrm/automation/pkg/registry"
)

// Engine bundles the fully wired automation components behind one handle.
// Callers construct one Engine per process and share it across goroutines.
type Engine struct {
	Service      *Service
	Ledger       *Ledger
	Executor     *Executor
	Orchestrator *Orchestrator
	Triggers     *TriggerManager
	Templates    *TemplateService
}

// NewEngine wires the engine against its collaborators. The event bus may be
// nil to disable outcome events.
func NewEngine(p persistence.Persistence, c cache.Cache, reg *registry.Registry, bus eventbus.EventBus, logger *slog.Logger) *Engine {
	service := NewService(p, c, logger)
	ledger := NewLedger(p, c, logger)
	executor := NewExecutor(reg, logger)
	orchestrator := NewOrchestrator(service, ledger, executor, bus, logger)

	return &Engine{
		Service:      service,
		Ledger:       ledger,
		Executor:     executor,
		Orchestrator: orchestrator,
		Triggers:     NewTriggerManager(p, orchestrator, logger),
		Templates:    NewTemplateService(p, service, logger),
	}
}
