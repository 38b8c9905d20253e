package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoInsertID is returned when neither the insert nor the fallback query yields a generated id.
var ErrNoInsertID = errors.New("insert did not produce an id")

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a database/sql handle plus the dialect needed to speak to it.
type DB struct {
	*sql.DB
	Dialect Dialect
	closer  func() error
}

// Open connects to the configured backend ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*DB, error) {
	switch driver {
	case "", "postgres", "postgresql":
		return OpenPostgres(ctx, dsn, logger)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Close releases the handle and any underlying pool.
func (db *DB) Close() error {
	if db.closer != nil {
		return db.closer()
	}
	return db.DB.Close()
}

// Rebind is shorthand for db.Dialect.Rebind.
func (db *DB) Rebind(query string) string { return db.Dialect.Rebind(query) }

// InTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertID executes an INSERT written with '?' placeholders and returns the generated id.
// Postgres appends RETURNING id. Otherwise the driver's LastInsertId is used, falling back to
// the dialect's last-insert-id function on the same Querier, so pass the transaction when inside one.
func (db *DB) InsertID(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	if db.Dialect.returning() {
		var id int64
		if err := q.QueryRowContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		if id > 0 {
			return id, nil
		}
	} else {
		res, err := q.ExecContext(ctx, db.Rebind(query), args...)
		if err != nil {
			return 0, err
		}
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			return id, nil
		}
	}
	var id int64
	if err := q.QueryRowContext(ctx, db.Dialect.lastInsertIDQuery()).Scan(&id); err != nil || id <= 0 {
		return 0, ErrNoInsertID
	}
	return id, nil
}

// Timestamp scans DATETIME/TIMESTAMPTZ columns from either backend.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
