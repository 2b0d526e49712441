package pivot

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"resourcekit/internal/dbexec"
	"resourcekit/internal/sqlutil"
)

// Type classifies a pivot table by what it stores besides the two keys.
type Type int

const (
	// Unknown means the columns could not be matched to the spec.
	Unknown Type = iota
	// Pure pivots hold only the two key columns.
	Pure
	// Attribute pivots carry extra columns (timestamps, roles, positions)
	// that synchronization must leave alone.
	Attribute
)

// String returns a human-readable representation of the pivot type.
func (t Type) String() string {
	switch t {
	case Pure:
		return "pure"
	case Attribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// Info describes a pivot table's layout.
type Info struct {
	Table            string
	Type             Type
	AttributeColumns []string
}

// Classify reports whether columns form a pure or an attribute pivot for
// spec. Both key columns must be present, otherwise the type is Unknown.
func Classify(spec Spec, columns []string) Info {
	info := Info{Table: spec.Table}
	keys := map[string]bool{spec.ForeignKey: false, spec.OtherKey: false}
	for _, col := range columns {
		if _, isKey := keys[col]; isKey {
			keys[col] = true
			continue
		}
		info.AttributeColumns = append(info.AttributeColumns, col)
	}
	for _, seen := range keys {
		if !seen {
			info.Type = Unknown
			return info
		}
	}
	if len(info.AttributeColumns) > 0 {
		info.Type = Attribute
	} else {
		info.Type = Pure
	}
	return info
}

// Describe reads the pivot's column list with a zero-row select and
// classifies it.
func Describe(ctx context.Context, exec dbexec.QueryExecutor, dialect sqlutil.Dialect, spec Spec) (Info, error) {
	query, args, err := sq.Select("*").
		From(dialect.QuoteIdent(spec.Table)).
		Where("1 = 0").
		PlaceholderFormat(dialect.Placeholders()).
		ToSql()
	if err != nil {
		return Info{}, fmt.Errorf("failed to build describe query: %w", err)
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return Info{}, fmt.Errorf("failed to describe pivot %q: %w", spec.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read columns of pivot %q: %w", spec.Table, err)
	}
	return Classify(spec, columns), nil
}
