package pivot

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"resourcekit/internal/dbexec"
	"resourcekit/internal/sqlutil"
)

// DefaultBatchSize bounds the IN list of one existence query.
const DefaultBatchSize = 500

// ExistenceChecker reports which target ids do not exist.
type ExistenceChecker interface {
	Missing(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ids []string) ([]string, error)
}

// SQLChecker looks ids up in the target table with batched IN queries.
type SQLChecker struct {
	Dialect   sqlutil.Dialect
	BatchSize int
}

// Missing implements ExistenceChecker. The result keeps the order of ids.
func (c SQLChecker) Missing(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if spec.TargetTable == "" {
		return nil, fmt.Errorf("no target table for relationship %q", spec.Relationship)
	}
	idColumn := spec.TargetIDColumn
	if idColumn == "" {
		idColumn = "id"
	}
	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	q := c.Dialect.QuoteIdent
	found := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		query, args, err := sq.Select(q(idColumn)).
			From(q(spec.TargetTable)).
			Where(sq.Eq{q(idColumn): toArgs(ids[start:end])}).
			PlaceholderFormat(c.Dialect.Placeholders()).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build existence query: %w", err)
		}
		if err := scanIDs(ctx, exec, query, args, func(id string) { found[id] = struct{}{} }); err != nil {
			return nil, err
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func scanIDs(ctx context.Context, exec dbexec.QueryExecutor, query string, args []interface{}, fn func(string)) error {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if id.Valid {
			fn(id.String)
		}
	}
	return rows.Err()
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
