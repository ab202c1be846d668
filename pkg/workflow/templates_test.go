package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/persistence"
)

func leadFollowUpTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:        "Lead follow-up starter",
		Description: "Notify the owner when a new lead arrives",
		Category:    "sales",
		IsPublic:    true,
		Owner:       "user-1",
		TemplateData: map[string]any{
			"name":         "Lead follow-up",
			"description":  "Send a follow-up when a lead is created",
			"trigger_type": "event",
			"trigger_config": map[string]any{
				"entity_type": "lead",
				"event_type":  "created",
			},
			"actions": []any{
				map[string]any{"type": "log", "configuration": map[string]any{"message": "new lead"}},
			},
		},
	}
}

func TestTemplateCreateAndList(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	created, err := engine.Templates.Create(ctx, leadFollowUpTemplate())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Zero(t, created.UsageCount)

	private := leadFollowUpTemplate()
	private.Name = "Private deal template"
	private.Category = "deals"
	private.IsPublic = false
	private.Owner = "user-2"

	_, err = engine.Templates.Create(ctx, private)
	require.NoError(t, err)

	public, err := engine.Templates.List(ctx, persistence.TemplateFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, created.ID, public[0].ID)

	sales, err := engine.Templates.List(ctx, persistence.TemplateFilter{Category: "sales"})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestTemplateCreateValidation(t *testing.T) {
	engine, _, _ := testEngine(t)

	template := leadFollowUpTemplate()
	template.Name = "ab"

	_, err := engine.Templates.Create(context.Background(), template)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestTemplateInstantiateAppliesOverrides(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	template, err := engine.Templates.Create(ctx, leadFollowUpTemplate())
	require.NoError(t, err)

	workflow, err := engine.Templates.Instantiate(ctx, template.ID,
		map[string]any{
			"name":     "My lead follow-up",
			"priority": 5,
		}, "user-9")
	require.NoError(t, err)

	// Overridden fields replace template values, the rest carry over.
	assert.Equal(t, "My lead follow-up", workflow.Name)
	assert.Equal(t, 5, workflow.Priority)
	assert.Equal(t, "Send a follow-up when a lead is created", workflow.Description)
	assert.Equal(t, models.TriggerTypeEvent, workflow.TriggerType)
	assert.Equal(t, "user-9", workflow.Owner)
	require.Len(t, workflow.Actions, 1)
	assert.Equal(t, "log", workflow.Actions[0].Type)

	// The instantiated workflow is a real, runnable record.
	stored, err := engine.Service.Get(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "My lead follow-up", stored.Name)

	// Usage moved because the instantiation succeeded.
	after, err := engine.Templates.Get(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UsageCount)
}

func TestTemplateInstantiateInvalidSpecDoesNotCountUsage(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	broken := leadFollowUpTemplate()
	broken.TemplateData["actions"] = []any{}

	template, err := engine.Templates.Create(ctx, broken)
	require.NoError(t, err)

	_, err = engine.Templates.Instantiate(ctx, template.ID, nil, "user-9")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	after, err := engine.Templates.Get(ctx, template.ID)
	require.NoError(t, err)
	assert.Zero(t, after.UsageCount)
}

func TestTemplateInstantiatePrivateTemplateOwnerOnly(t *testing.T) {
	engine, _, _ := testEngine(t, newScriptedFactory("log", 0, "ok", nil))
	ctx := context.Background()

	private := leadFollowUpTemplate()
	private.IsPublic = false

	template, err := engine.Templates.Create(ctx, private)
	require.NoError(t, err)

	_, err = engine.Templates.Instantiate(ctx, template.ID, nil, "intruder")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	workflow, err := engine.Templates.Instantiate(ctx, template.ID, nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", workflow.Owner)
}

func TestTemplateInstantiateMissingTemplate(t *testing.T) {
	engine, _, _ := testEngine(t)

	_, err := engine.Templates.Instantiate(context.Background(), "missing", nil, "user-1")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateDeleteChecksOwner(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	template, err := engine.Templates.Create(ctx, leadFollowUpTemplate())
	require.NoError(t, err)

	err = engine.Templates.Delete(ctx, template.ID, "intruder")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, engine.Templates.Delete(ctx, template.ID, "user-1"))

	_, err = engine.Templates.Get(ctx, template.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
