package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/relaycrm/automation/pkg/cache"
	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
	"github.com/relaycrm/automation/pkg/persistence/memory"
	"github.com/relaycrm/automation/pkg/protocol"
	"github.com/relaycrm/automation/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// callRecorder captures action invocation order across scripted factories.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, id)
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.calls))
	copy(out, r.calls)

	return out
}

// scriptedFactory builds actions that fail a fixed number of times before
// succeeding with a canned result.
type scriptedFactory struct {
	id       string
	failures int
	result   any
	recorder *callRecorder

	mu        sync.Mutex
	remaining int
	attempts  int
}

func newScriptedFactory(id string, failures int, result any, recorder *callRecorder) *scriptedFactory {
	return &scriptedFactory{
		id:        id,
		failures:  failures,
		result:    result,
		recorder:  recorder,
		remaining: failures,
	}
}

func (f *scriptedFactory) ID() string             { return f.id }
func (f *scriptedFactory) Name() string           { return f.id }
func (f *scriptedFactory) Description() string    { return "scripted test action" }
func (f *scriptedFactory) Schema() map[string]any { return nil }

func (f *scriptedFactory) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

func (f *scriptedFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &scriptedAction{factory: f}, nil
}

type scriptedAction struct {
	factory *scriptedFactory
}

func (a *scriptedAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	f := a.factory

	f.mu.Lock()
	f.attempts++
	fail := f.remaining > 0
	if fail {
		f.remaining--
	}
	f.mu.Unlock()

	if f.recorder != nil {
		f.recorder.record(f.id)
	}

	if fail {
		return nil, fmt.Errorf("scripted failure for '%s'", f.id)
	}

	return f.result, nil
}

// testEngine wires an Engine against in-memory collaborators with fast
// retry backoff.
func testEngine(t *testing.T, factories ...protocol.ActionFactory) (*Engine, *memory.Store, *cache.MemoryCache) {
	t.Helper()

	store := memory.NewStore()
	memCache := cache.NewMemoryCache()
	reg := registry.NewRegistry(testLogger())

	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	engine := NewEngine(store, memCache, reg, nil, testLogger())
	engine.Executor.backoff = time.Millisecond
	engine.Triggers.batchPause = 0

	return engine, store, memCache
}

func listFilterFor(workflowID string) persistence.ExecutionFilter {
	return persistence.ExecutionFilter{WorkflowID: workflowID}
}

// resultProbeFactory captures the action results visible to its action, to
// assert that later actions can read earlier outputs.
type resultProbeFactory struct {
	mu   sync.Mutex
	seen [][]any
}

func (f *resultProbeFactory) ID() string             { return "probe" }
func (f *resultProbeFactory) Name() string           { return "probe" }
func (f *resultProbeFactory) Description() string    { return "records visible action results" }
func (f *resultProbeFactory) Schema() map[string]any { return nil }

func (f *resultProbeFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &resultProbeAction{factory: f}, nil
}

type resultProbeAction struct {
	factory *resultProbeFactory
}

func (a *resultProbeAction) Execute(_ context.Context, executionCtx models.ExecutionContext, _ *slog.Logger) (any, error) {
	values := make([]any, 0, len(executionCtx.ActionResults))
	for _, v := range executionCtx.ActionResults {
		values = append(values, v)
	}

	a.factory.mu.Lock()
	a.factory.seen = append(a.factory.seen, values)
	a.factory.mu.Unlock()

	return "probed", nil
}

func validWorkflow(actionTypes ...string) *models.Workflow {
	actions := make([]*models.WorkflowAction, 0, len(actionTypes))
	for _, actionType := range actionTypes {
		actions = append(actions, &models.WorkflowAction{Type: actionType, MaxRetries: 1, Timeout: time.Second})
	}

	return &models.Workflow{
		Name:        "Lead follow-up",
		Description: "Send a follow-up when a lead is created",
		TriggerType: models.TriggerTypeEvent,
		TriggerConfig: map[string]any{
			"entity_type": "lead",
			"event_type":  "created",
		},
		Actions: actions,
		Active:  true,
		Owner:   "user-1",
	}
}
