package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
)

// Store implements persistence.Persistence on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	taskRepo      *TaskRepository
	logRepo       *LogRepository
}

// NewStore runs the migrations and builds the repositories.
func NewStore(ctx context.Context, logger *slog.Logger, db *sql.DB, dialect Dialect, migrations map[int]string) (*Store, error) {
	err := NewMigrationManager(logger, db, dialect, migrations).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	conn := &conn{db: db, dialect: dialect, logger: logger}

	return &Store{
		db:            db,
		dialect:       dialect,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{conn: conn},
		executionRepo: &ExecutionRepository{conn: conn},
		taskRepo:      &TaskRepository{conn: conn},
		logRepo:       &LogRepository{conn: conn},
	}, nil
}

func (s *Store) Workflows() persistence.WorkflowRepository   { return s.workflowRepo }
func (s *Store) Executions() persistence.ExecutionRepository { return s.executionRepo }
func (s *Store) Tasks() persistence.TaskRepository           { return s.taskRepo }
func (s *Store) Logs() persistence.LogRepository             { return s.logRepo }

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error) {
	query := Rebind(s.dialect, `
		SELECT
			(SELECT COUNT(*) FROM workflows WHERE is_active = ?),
			(SELECT COUNT(*) FROM executions WHERE status = ?),
			(SELECT COUNT(*) FROM executions WHERE started_at >= ?),
			(SELECT COUNT(*) FROM deferred_tasks WHERE status = ?)
	`)

	var stats models.Stats

	err := s.db.QueryRowContext(ctx, query,
		true,
		models.ExecutionStatusRunning,
		dayStart.UTC(),
		models.TaskStatusPending,
	).Scan(&stats.ActiveWorkflows, &stats.RunningExecutions, &stats.ExecutionsToday, &stats.PendingTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	return &stats, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

type conn struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func (c *conn) rebind(query string) string {
	return Rebind(c.dialect, query)
}

func (c *conn) closeRows(ctx context.Context, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		c.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}

// exec runs a statement and returns the number of affected rows.
func (c *conn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := c.db.ExecContext(ctx, c.rebind(query), args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func marshalJSON(value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(payload), nil
}

func unmarshalJSON(raw []byte, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	return json.Unmarshal(raw, target)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}
