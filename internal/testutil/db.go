// Package testutil provides a migrated SQLite database for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/confreg/backend/pkg/database"
)

// NewDB opens a fresh SQLite database in t.TempDir, runs migrations and closes it on cleanup.
func NewDB(t testing.TB) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}
