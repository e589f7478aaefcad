package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Execution is one instance of a workflow run against specific trigger data.
// Steps holds the workflow's step list as it was when the execution started.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	TriggerData  map[string]any  `json:"trigger_data"`
	CurrentStep  int             `json:"current_step"`
	Status       ExecutionStatus `json:"status"`
	Steps        []*Step         `json:"steps"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Logs         []*LogEntry     `json:"logs,omitempty"`
}

// ExecutionFilter narrows ListExecutions. Zero values match everything.
type ExecutionFilter struct {
	WorkflowID string
	Status     ExecutionStatus
	Limit      int
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// DeferredTask is a durable record of a step waiting for its resume time.
type DeferredTask struct {
	ID            string     `json:"id"`
	ExecutionID   string     `json:"execution_id"`
	StepNumber    int        `json:"step_id"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Status        TaskStatus `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	// DelayElapsed marks a task parked by the step's own delay_minutes, so
	// resuming it runs the step body instead of delaying again.
	DelayElapsed bool      `json:"delay_elapsed"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is an append-only execution history record. A nil StepNumber
// marks an execution-level entry.
type LogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	StepNumber  *int           `json:"step_id,omitempty"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Stats is the dashboard summary of the engine state.
type Stats struct {
	ActiveWorkflows   int `json:"active_workflows"`
	RunningExecutions int `json:"running_executions"`
	ExecutionsToday   int `json:"executions_today"`
	PendingTasks      int `json:"pending_tasks"`
}
