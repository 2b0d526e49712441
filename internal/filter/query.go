package filter

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"resourcekit/internal/resterr"
	"resourcekit/internal/sqlutil"
)

// Query is the live select builder the filter phases extend. Joins are keyed
// by alias, so emitting the same join twice is a no-op.
type Query struct {
	dialect  sqlutil.Dialect
	table    string
	builder  sq.SelectBuilder
	aliases  map[string]string
	joinOn   map[string]string
	order    []string
	distinct bool
}

// NewQuery starts SELECT table.* FROM table.
func NewQuery(dialect sqlutil.Dialect, table string) *Query {
	builder := sq.Select(dialect.QuoteIdent(table) + ".*").From(dialect.QuoteIdent(table))
	return NewQueryFrom(dialect, table, builder)
}

// NewQueryFrom wraps a caller-supplied builder whose FROM is table.
func NewQueryFrom(dialect sqlutil.Dialect, table string, builder sq.SelectBuilder) *Query {
	return &Query{
		dialect: dialect,
		table:   table,
		builder: builder,
		aliases: make(map[string]string),
		joinOn:  make(map[string]string),
	}
}

// Table returns the main table, which is also its alias.
func (q *Query) Table() string {
	return q.table
}

// Dialect returns the dialect used for quoting.
func (q *Query) Dialect() sqlutil.Dialect {
	return q.dialect
}

// Quote quotes an identifier for the query's dialect.
func (q *Query) Quote(name string) string {
	return q.dialect.QuoteIdent(name)
}

// Column renders alias.column.
func (q *Query) Column(alias, column string) string {
	return sqlutil.Qualify(q.dialect.QuoteIdent, alias, column)
}

// LeftJoin adds LEFT JOIN table AS alias ON on. It reports false, and adds
// nothing, when the same join is already present. Reusing an alias for a
// different table or condition is a configuration error.
func (q *Query) LeftJoin(table, alias, on string, args ...interface{}) (bool, error) {
	if existing, exists := q.aliases[alias]; exists {
		if existing != table || q.joinOn[alias] != on {
			return false, resterr.Configurationf("join alias %q already joins %q; cannot also join %q", alias, existing, table)
		}
		return false, nil
	}
	q.aliases[alias] = table
	q.joinOn[alias] = on
	q.order = append(q.order, alias)
	q.builder = q.builder.LeftJoin(
		fmt.Sprintf("%s AS %s ON %s", q.Quote(table), q.Quote(alias), on),
		args...,
	)
	return true, nil
}

// Where ANDs pred onto the statement.
func (q *Query) Where(pred sq.Sqlizer) {
	q.builder = q.builder.Where(pred)
}

// Distinct marks the statement SELECT DISTINCT. Repeated calls are no-ops.
func (q *Query) Distinct() {
	if q.distinct {
		return
	}
	q.distinct = true
	q.builder = q.builder.Distinct()
}

// IsDistinct reports whether Distinct was applied.
func (q *Query) IsDistinct() bool {
	return q.distinct
}

// HasJoins reports whether any join has been emitted.
func (q *Query) HasJoins() bool {
	return len(q.order) > 0
}

// JoinAliases returns emitted aliases in emission order.
func (q *Query) JoinAliases() []string {
	return append([]string(nil), q.order...)
}

// JoinedTables returns alias -> table for emitted joins, sorted by alias.
func (q *Query) JoinedTables() [][2]string {
	aliases := make([]string, 0, len(q.aliases))
	for alias := range q.aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	out := make([][2]string, len(aliases))
	for i, alias := range aliases {
		out[i] = [2]string{alias, q.aliases[alias]}
	}
	return out
}

// Builder returns the underlying builder with the dialect's placeholder format.
func (q *Query) Builder() sq.SelectBuilder {
	return q.builder.PlaceholderFormat(q.dialect.Placeholders())
}

// ToSql renders the statement.
func (q *Query) ToSql() (string, []interface{}, error) {
	return q.Builder().ToSql()
}
