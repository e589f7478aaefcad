package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type TEXT NOT NULL CHECK (trigger_type IN ('manual', 'event', 'scheduled')),
				trigger_event TEXT NOT NULL DEFAULT '',
				schedule TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_workflows_active_trigger ON workflows(is_active, trigger_type);

			CREATE TABLE workflow_steps (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				step_number INTEGER NOT NULL CHECK (step_number > 0),
				step_type TEXT NOT NULL,
				config TEXT NOT NULL DEFAULT '{}',
				delay_minutes INTEGER NOT NULL DEFAULT 0 CHECK (delay_minutes >= 0),
				condition_rule TEXT,
				UNIQUE (workflow_id, step_number)
			);

			CREATE TABLE executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				trigger_data TEXT NOT NULL DEFAULT '{}',
				current_step INTEGER NOT NULL DEFAULT 1,
				status TEXT NOT NULL CHECK (status IN ('running', 'paused', 'completed', 'failed')),
				steps TEXT NOT NULL DEFAULT '[]',
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE deferred_tasks (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL,
				step_number INTEGER NOT NULL,
				scheduled_time TIMESTAMP NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				delay_elapsed BOOLEAN NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_deferred_tasks_due ON deferred_tasks(status, scheduled_time);
			CREATE INDEX idx_deferred_tasks_execution_id ON deferred_tasks(execution_id);
			CREATE UNIQUE INDEX idx_deferred_tasks_active_step ON deferred_tasks(execution_id, step_number)
				WHERE status IN ('pending', 'processing');

			CREATE TABLE execution_logs (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL,
				step_number INTEGER,
				level TEXT NOT NULL CHECK (level IN ('info', 'success', 'warning', 'error')),
				message TEXT NOT NULL,
				data TEXT,
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, created_at);
		`,
	}
}
