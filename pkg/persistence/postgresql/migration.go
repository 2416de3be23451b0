package postgresql

// migrations returns the schema migrations in version order. Execution steps
// are append-only; there is deliberately no UPDATE path for them.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(100) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_tenant ON workflows(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_workflows_trigger
				ON workflows(tenant_id, trigger_type, status)
				WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS workflow_nodes (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				trigger_type VARCHAR(100),
				condition_type VARCHAR(100),
				action_type VARCHAR(100),
				config JSONB,
				position_x INTEGER NOT NULL DEFAULT 0,
				position_y INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, node_id)
			);

			CREATE TABLE IF NOT EXISTS workflow_connections (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				connection_id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255),
				target_handle VARCHAR(255),
				label VARCHAR(255),
				PRIMARY KEY (workflow_id, connection_id)
			);

			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				tenant_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				event_payload JSONB,
				actor_user_id VARCHAR(255) NOT NULL DEFAULT '',
				resume_at TIMESTAMP WITH TIME ZONE,
				resume_node_id VARCHAR(255) NOT NULL DEFAULT '',
				failure_reason TEXT NOT NULL DEFAULT '',
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id);
			CREATE INDEX IF NOT EXISTS idx_executions_tenant ON executions(tenant_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_executions_due
				ON executions(resume_at)
				WHERE status = 'suspended';

			CREATE TABLE IF NOT EXISTS execution_steps (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				outcome VARCHAR(50) NOT NULL,
				attempt INTEGER NOT NULL DEFAULT 1,
				error TEXT NOT NULL DEFAULT '',
				output TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_execution_steps_execution
				ON execution_steps(execution_id, created_at);
		`,
	}
}
