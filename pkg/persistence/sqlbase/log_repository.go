package sqlbase

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
)

// LogRepository handles execution log database operations. Entries are append-only.
type LogRepository struct {
	conn *conn
}

func (r *LogRepository) Append(ctx context.Context, entry *models.LogEntry) error {
	var stepNumber sql.NullInt64
	if entry.StepNumber != nil {
		stepNumber = sql.NullInt64{Int64: int64(*entry.StepNumber), Valid: true}
	}

	var data sql.NullString

	if entry.Data != nil {
		dataJSON, err := marshalJSON(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal log data: %w", err)
		}

		data = sql.NullString{String: dataJSON, Valid: true}
	}

	_, err := r.conn.exec(ctx, `
		INSERT INTO execution_logs (id, execution_id, step_number, level, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.ExecutionID,
		stepNumber,
		entry.Level,
		entry.Message,
		data,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

func (r *LogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.LogEntry, error) {
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(`
		SELECT id, execution_id, step_number, level, message, data, created_at
		FROM execution_logs
		WHERE execution_id = ?
		ORDER BY created_at ASC, id ASC
	`), executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer r.conn.closeRows(ctx, rows)

	entries := make([]*models.LogEntry, 0)

	for rows.Next() {
		var (
			entry      models.LogEntry
			stepNumber sql.NullInt64
			data       sql.NullString
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &stepNumber, &entry.Level, &entry.Message, &data, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if stepNumber.Valid {
			step := int(stepNumber.Int64)
			entry.StepNumber = &step
		}

		if data.Valid {
			err = unmarshalJSON([]byte(data.String), &entry.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal log data: %w", err)
			}
		}

		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
