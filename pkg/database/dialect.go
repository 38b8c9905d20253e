package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Rebind rewrites '?' placeholders into the dialect's form ($1, $2, ... for Postgres).
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d Dialect) returning() bool { return d == Postgres }

func (d Dialect) lastInsertIDQuery() string {
	if d == Postgres {
		return "SELECT lastval()"
	}
	return "SELECT last_insert_rowid()"
}

// LogFields returns driver detail for server-side logging. Never serialise these into a response.
func LogFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields,
			zap.String("sqlstate", pgErr.Code),
			zap.String("constraint", pgErr.ConstraintName),
			zap.String("table", pgErr.TableName),
			zap.String("detail", pgErr.Detail),
		)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		fields = append(fields, zap.Int("sqlite_code", liteErr.Code()))
	}
	return fields
}
