// Package sqlite provides the SQLite backend of the state store, the default
// for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dukex/flowline/pkg/persistence/sqlbase"
	"github.com/mattn/go-sqlite3"
)

const defaultBusyTimeoutMS = 5000

// Dialect is the SQLite flavour of sqlbase.Dialect.
type Dialect struct{}

func (Dialect) Name() string {
	return "sqlite"
}

func (Dialect) Placeholder(int) string {
	return "?"
}

func (Dialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error

	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// Persistence implements the persistence layer for SQLite.
type Persistence struct {
	*sqlbase.Store
}

// NewPersistence opens (creating if needed) the database file at path.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL",
		path, defaultBusyTimeoutMS)

	database, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	database.SetMaxOpenConns(1) // SQLite only supports one writer
	database.SetMaxIdleConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlbase.NewStore(ctx, logger, database, Dialect{}, migrations())
	if err != nil {
		_ = database.Close()

		return nil, err
	}

	return &Persistence{Store: store}, nil
}
