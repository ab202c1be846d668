package workflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/protocol"
	"github.com/relaycrm/automation/pkg/registry"
)

func newTestExecutor(t *testing.T, factories ...*scriptedFactory) *Executor {
	t.Helper()

	reg := registry.NewRegistry(testLogger())
	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	executor := NewExecutor(reg, testLogger())
	executor.backoff = time.Millisecond

	return executor
}

func TestExecutorSucceedsFirstAttempt(t *testing.T) {
	factory := newScriptedFactory("log", 0, "done", nil)
	executor := newTestExecutor(t, factory)

	result, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "log", MaxRetries: 3, Timeout: time.Second},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 1, factory.Attempts())
}

func TestExecutorRetriesUntilSuccess(t *testing.T) {
	factory := newScriptedFactory("flaky", 2, "recovered", nil)
	executor := newTestExecutor(t, factory)

	result, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "flaky", MaxRetries: 3, Timeout: time.Second},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, factory.Attempts())
}

func TestExecutorExhaustsRetryBudget(t *testing.T) {
	factory := newScriptedFactory("broken", 100, nil, nil)
	executor := newTestExecutor(t, factory)

	_, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "broken", MaxRetries: 2, Timeout: time.Second},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.Error(t, err)

	var actionErr *ActionError

	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "broken", actionErr.ActionType)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, actionErr.Attempts)
	assert.Equal(t, 3, factory.Attempts())
}

func TestExecutorAppliesDefaultRetryBudget(t *testing.T) {
	factory := newScriptedFactory("broken", 100, nil, nil)
	executor := newTestExecutor(t, factory)

	_, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "broken"},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.Error(t, err)
	assert.Equal(t, DefaultMaxRetries+1, factory.Attempts())
}

func TestExecutorUnregisteredActionNotRetried(t *testing.T) {
	executor := newTestExecutor(t)

	_, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "ghost", MaxRetries: 5, Timeout: time.Second},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.Error(t, err)

	var actionErr *ActionError

	require.ErrorAs(t, err, &actionErr)
	assert.Zero(t, actionErr.Attempts)
}

func TestExecutorAttemptTimeout(t *testing.T) {
	reg := registry.NewRegistry(testLogger())
	reg.RegisterAction(&slowFactory{})

	executor := NewExecutor(reg, testLogger())
	executor.backoff = time.Millisecond

	start := time.Now()

	_, err := executor.Execute(context.Background(),
		&models.WorkflowAction{Type: "slow", MaxRetries: 1, Timeout: 10 * time.Millisecond},
		models.ExecutionContext{ExecutionID: "exec-1"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type slowFactory struct{}

func (f *slowFactory) ID() string             { return "slow" }
func (f *slowFactory) Name() string           { return "slow" }
func (f *slowFactory) Description() string    { return "sleeps past any deadline" }
func (f *slowFactory) Schema() map[string]any { return nil }

func (f *slowFactory) Create(_ map[string]any) (protocol.Action, error) {
	return slowAction{}, nil
}

type slowAction struct{}

func (slowAction) Execute(ctx context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	<-ctx.Done()

	return nil, ctx.Err()
}
