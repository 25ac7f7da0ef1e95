// Package sqlstore implements repositories.Storage over database/sql for PostgreSQL,
// MySQL and SQLite.
package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
)

// Dialect selects the SQL flavour a Store renders
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// ParseDialect parses a configured dialect name
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case Postgres, MySQL, SQLite:
		return d, nil
	case "postgresql":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database dialect %q", s)
}

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	switch d {
	case SQLite:
		return "sqlite"
	default:
		return string(d)
	}
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Like renders a LIKE comparison. SQLite's LIKE ignores ASCII case regardless.
func (d Dialect) Like(column, placeholder string, insensitive, negate bool) string {
	not := ""
	if negate {
		not = "NOT "
	}
	switch {
	case insensitive && d == Postgres:
		return fmt.Sprintf("%s %sILIKE %s", column, not, placeholder)
	case insensitive:
		return fmt.Sprintf("LOWER(%s) %sLIKE LOWER(%s)", column, not, placeholder)
	case d == MySQL:
		return fmt.Sprintf("%s %sLIKE BINARY %s", column, not, placeholder)
	default:
		return fmt.Sprintf("%s %sLIKE %s", column, not, placeholder)
	}
}

// OrderTerm renders one ORDER BY term so that NULL sorts before every value.
// MySQL and SQLite already do that; PostgreSQL treats NULL as largest.
func (d Dialect) OrderTerm(column string, dir search.Direction) string {
	if d != Postgres {
		return column + " " + string(dir)
	}
	if dir == search.DESC {
		return column + " DESC NULLS LAST"
	}
	return column + " ASC NULLS FIRST"
}

// LimitOffset renders the LIMIT / OFFSET clause
func (d Dialect) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0 && d == MySQL:
		// MySQL has no OFFSET without LIMIT
		return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset)
	case offset > 0 && d == SQLite:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	return ""
}

// ColumnType returns the column type used for an attribute type in generated DDL
func (d Dialect) ColumnType(t entities.AttributeType, isID bool) string {
	switch t {
	case entities.TypeInt:
		return "BIGINT"
	case entities.TypeFloat:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		if d == MySQL {
			return "DOUBLE"
		}
		return "REAL"
	case entities.TypeBoolean:
		return "BOOLEAN"
	case entities.TypeDateTime:
		if d == Postgres {
			return "TIMESTAMPTZ"
		}
		if d == MySQL {
			return "DATETIME(6)"
		}
		return "DATETIME"
	case entities.TypeString:
		if d == MySQL {
			if isID {
				return "VARCHAR(255)"
			}
			return "TEXT"
		}
		return "TEXT"
	}
	// arrays are stored as JSON text
	if d == MySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}
