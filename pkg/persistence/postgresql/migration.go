package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(20) NOT NULL CHECK (trigger_type IN ('manual', 'event', 'scheduled')),
				trigger_event VARCHAR(255) NOT NULL DEFAULT '',
				schedule VARCHAR(255) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_active_trigger ON workflows(is_active, trigger_type);

			CREATE TABLE workflow_steps (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				step_number INT NOT NULL CHECK (step_number > 0),
				step_type VARCHAR(20) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				delay_minutes INT NOT NULL DEFAULT 0 CHECK (delay_minutes >= 0),
				condition_rule JSONB,
				UNIQUE (workflow_id, step_number)
			);

			-- executions keep no foreign key: deleting a workflow preserves history
			CREATE TABLE executions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL,
				trigger_data JSONB NOT NULL DEFAULT '{}',
				current_step INT NOT NULL DEFAULT 1,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'paused', 'completed', 'failed')),
				steps JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE deferred_tasks (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL,
				step_number INT NOT NULL,
				scheduled_time TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 3,
				delay_elapsed BOOLEAN NOT NULL DEFAULT false,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_deferred_tasks_due ON deferred_tasks(status, scheduled_time);
			CREATE INDEX idx_deferred_tasks_execution_id ON deferred_tasks(execution_id);
			CREATE UNIQUE INDEX idx_deferred_tasks_active_step ON deferred_tasks(execution_id, step_number)
				WHERE status IN ('pending', 'processing');

			CREATE TABLE execution_logs (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL,
				step_number INT,
				level VARCHAR(20) NOT NULL CHECK (level IN ('info', 'success', 'warning', 'error')),
				message TEXT NOT NULL,
				data JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, created_at);
		`,
	}
}
