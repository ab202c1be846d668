package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL CHECK (trigger_type IN ('time', 'event', 'condition', 'manual')),
				trigger_config JSONB,
				conditions JSONB,
				active BOOLEAN NOT NULL DEFAULT false,
				priority INT NOT NULL DEFAULT 0,
				owner VARCHAR(255) NOT NULL,
				execution_count INT NOT NULL DEFAULT 0,
				success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_active ON workflows(active);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_priority ON workflows(priority DESC, created_at ASC);

			CREATE TABLE workflow_triggers (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				trigger_type VARCHAR(50) NOT NULL,
				entity_type VARCHAR(255),
				event_type VARCHAR(255),
				conditions JSONB,
				schedule_expression VARCHAR(255),
				active BOOLEAN NOT NULL DEFAULT true,
				last_fired_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_triggers_workflow_id ON workflow_triggers(workflow_id);
			CREATE INDEX idx_workflow_triggers_match ON workflow_triggers(trigger_type, entity_type, event_type);

			CREATE TABLE workflow_actions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				action_type VARCHAR(255) NOT NULL,
				configuration JSONB,
				critical BOOLEAN NOT NULL DEFAULT false,
				max_retries INT NOT NULL DEFAULT 3,
				timeout_ms BIGINT NOT NULL DEFAULT 0,
				execution_order INT NOT NULL
			);

			CREATE INDEX idx_workflow_actions_workflow_id ON workflow_actions(workflow_id, execution_order);

			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				trigger_data JSONB,
				context_data JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT,
				execution_log JSONB,
				actions_executed JSONB
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id, started_at DESC);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(workflow_id, status);

			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(255),
				template_data JSONB NOT NULL,
				usage_count INT NOT NULL DEFAULT 0,
				is_public BOOLEAN NOT NULL DEFAULT false,
				owner VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_category ON workflow_templates(category);
			CREATE INDEX idx_workflow_templates_owner ON workflow_templates(owner);
		`,
	}
}
