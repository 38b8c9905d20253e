// Package lookups serves validation-table values (lunch menus, job categories and the like).
package lookups

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/confreg/backend/pkg/database"
)

// Repository handles validation_tables persistence.
type Repository struct {
	db *database.DB
}

// NewRepository creates a lookups repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Values returns the values of a validation table in ascending order.
func (r *Repository) Values(ctx context.Context, table string) ([]string, error) {
	const q = `SELECT value FROM validation_tables WHERE validation_table = ? ORDER BY value ASC`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Seed inserts every table/value pair that is not already present and returns how many were added.
func (r *Repository) Seed(ctx context.Context, tables map[string][]string) (int, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	const q = `INSERT INTO validation_tables (validation_table, value) VALUES (?, ?)
		ON CONFLICT (validation_table, value) DO NOTHING`
	added := 0
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, name := range names {
			for _, v := range tables[name] {
				v = strings.TrimSpace(v)
				if v == "" {
					continue
				}
				res, err := tx.ExecContext(ctx, r.db.Rebind(q), name, v)
				if err != nil {
					return fmt.Errorf("seed %s: %w", name, err)
				}
				n, _ := res.RowsAffected()
				added += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// LoadSeedFile reads a YAML map of table name to values, e.g.
//
//	lunch_menu:
//	  - Chicken
//	  - Vegetarian
func LoadSeedFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var tables map[string][]string
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for name := range tables {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("parse seed file %s: empty table name", path)
		}
	}
	return tables, nil
}
