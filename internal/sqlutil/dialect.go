package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Dialect covers the per-engine differences in emitted fragments: identifier
// quoting and bind placeholder style. Everything else is plain SQL.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	Placeholders() sq.PlaceholderFormat
}

var (
	// MySQL quotes with backticks and binds with '?'.
	MySQL Dialect = mysqlDialect{}
	// SQLite accepts MySQL-style backtick quoting and '?' placeholders.
	SQLite Dialect = sqliteDialect{}
	// Postgres quotes with double quotes and binds with $n.
	Postgres Dialect = postgresDialect{}
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string                       { return "mysql" }
func (mysqlDialect) QuoteIdent(name string) string      { return QuoteIdentifier(name) }
func (mysqlDialect) Placeholders() sq.PlaceholderFormat { return sq.Question }

type sqliteDialect struct{}

func (sqliteDialect) Name() string                       { return "sqlite" }
func (sqliteDialect) QuoteIdent(name string) string      { return QuoteIdentifier(name) }
func (sqliteDialect) Placeholders() sq.PlaceholderFormat { return sq.Question }

type postgresDialect struct{}

func (postgresDialect) Name() string                       { return "postgres" }
func (postgresDialect) QuoteIdent(name string) string      { return pq.QuoteIdentifier(name) }
func (postgresDialect) Placeholders() sq.PlaceholderFormat { return sq.Dollar }

// DialectFor maps a driver or dialect name to its Dialect.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", name)
	}
}
