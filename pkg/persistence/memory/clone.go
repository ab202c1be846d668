package memory

import "github.com/relaycrm/automation/pkg/models"

// The store hands out copies so callers cannot mutate shared state behind
// the mutex.

func cloneWorkflow(workflow *models.Workflow) *models.Workflow {
	clone := *workflow
	clone.TriggerConfig = cloneMap(workflow.TriggerConfig)

	if workflow.LastExecutedAt != nil {
		last := *workflow.LastExecutedAt
		clone.LastExecutedAt = &last
	}

	clone.Actions = make([]*models.WorkflowAction, 0, len(workflow.Actions))
	for _, action := range workflow.Actions {
		actionClone := *action
		actionClone.Configuration = cloneMap(action.Configuration)
		clone.Actions = append(clone.Actions, &actionClone)
	}

	clone.Triggers = make([]*models.WorkflowTrigger, 0, len(workflow.Triggers))
	for _, trigger := range workflow.Triggers {
		clone.Triggers = append(clone.Triggers, cloneTrigger(trigger))
	}

	return &clone
}

func cloneTrigger(trigger *models.WorkflowTrigger) *models.WorkflowTrigger {
	clone := *trigger

	if trigger.LastFiredAt != nil {
		fired := *trigger.LastFiredAt
		clone.LastFiredAt = &fired
	}

	return &clone
}

func cloneExecution(execution *models.WorkflowExecution) *models.WorkflowExecution {
	clone := *execution
	clone.TriggerData = cloneMap(execution.TriggerData)
	clone.ContextData = cloneMap(execution.ContextData)

	if execution.CompletedAt != nil {
		completed := *execution.CompletedAt
		clone.CompletedAt = &completed
	}

	clone.ExecutionLog = append([]string(nil), execution.ExecutionLog...)
	clone.ActionsExecuted = append([]models.ActionRecord(nil), execution.ActionsExecuted...)

	return &clone
}

func cloneTemplate(template *models.WorkflowTemplate) *models.WorkflowTemplate {
	clone := *template
	clone.TemplateData = cloneMap(template.TemplateData)

	return &clone
}

func cloneMap(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}

	clone := make(map[string]any, len(source))

	for key, value := range source {
		if nested, ok := value.(map[string]any); ok {
			clone[key] = cloneMap(nested)

			continue
		}

		clone[key] = value
	}

	return clone
}
