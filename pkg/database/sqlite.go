package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) a SQLite database file.
// A single connection is used: SQLite serialises writers anyway, and last_insert_rowid()
// is connection-scoped.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if logger != nil {
		logger.Info("SQLite database opened", zap.String("path", path))
	}
	return &DB{DB: conn, Dialect: SQLite, closer: conn.Close}, nil
}
