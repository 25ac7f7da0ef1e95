package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asakaida/datagraph/internal/entities"
)

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for an entity type
func CreateTableSQL(d Dialect, def *entities.EntityType) string {
	cols := make([]string, 0, len(def.Attributes)+1)
	for _, a := range def.Attributes {
		isID := a.Name == def.IDAttribute
		col := d.Quote(a.Name) + " " + d.ColumnType(a.Type, isID)
		if isID {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", d.Quote(def.IDAttribute)))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", d.Quote(def.Table), strings.Join(cols, ",\n    "))
}

// CreateIndexSQL renders one index per scalar foreign key stored on the entity type.
// MySQL gets none: it has no CREATE INDEX IF NOT EXISTS and foreign keys are TEXT columns.
func CreateIndexSQL(d Dialect, def *entities.EntityType) []string {
	if d == MySQL {
		return nil
	}
	var stmts []string
	for _, r := range def.Relations {
		if r.KeyLocation != entities.KeySelf || r.HoldsArray() {
			continue
		}
		name := fmt.Sprintf("idx_%s_%s", def.Table, r.ForeignKey)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", d.Quote(name), d.Quote(def.Table), d.Quote(r.ForeignKey)))
	}
	return stmts
}

// EnsureSchema creates the tables of every entity type when they are missing.
// Migrations own the production schema; this serves development and tests.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect, schema *entities.Schema) error {
	for _, def := range schema.Entities() {
		if _, err := db.ExecContext(ctx, CreateTableSQL(d, def)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Table, err)
		}
		for _, stmt := range CreateIndexSQL(d, def) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", def.Table, err)
			}
		}
	}
	return nil
}
