// Package sqlutil provides SQL identifier helpers shared by the filter compiler
// and the pivot synchronizer.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, alias)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify renders alias.column using the given quoting function.
// An empty alias yields the bare quoted column.
func Qualify(quote func(string) string, alias, column string) string {
	if alias == "" {
		return quote(column)
	}
	return quote(alias) + "." + quote(column)
}
