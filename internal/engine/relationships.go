package engine

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"resourcekit/internal/dbexec"
	"resourcekit/internal/logging"
	"resourcekit/internal/observability"
	"resourcekit/internal/pivot"
	"resourcekit/internal/relextract"
	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
)

// Outcome reports what a relationship update changed.
type Outcome struct {
	// Columns are the foreign-key assignments written to the owner row.
	Columns map[string]interface{}
	// Pivots holds the synchronization result per many-to-many relationship.
	Pivots map[string]pivot.Result
}

type pivotMode int

const (
	pivotSync pivotMode = iota
	pivotCreate
)

// UpdateRelationships applies rels to the owner row ownerID: foreign-key
// columns in one UPDATE, then each many-to-many relationship through Sync.
// The payload is fully validated before the first statement; the caller owns
// the transaction.
func (e *Engine) UpdateRelationships(ctx context.Context, exec dbexec.QueryExecutor, resource, ownerID string, rels relextract.Relationships) (Outcome, error) {
	return e.apply(ctx, exec, "engine.update_relationships", resource, ownerID, rels, pivotSync)
}

// CreateRelationships is UpdateRelationships for a freshly inserted owner:
// pivot rows are only added, never read or deleted.
func (e *Engine) CreateRelationships(ctx context.Context, exec dbexec.QueryExecutor, resource, ownerID string, rels relextract.Relationships) (Outcome, error) {
	return e.apply(ctx, exec, "engine.create_relationships", resource, ownerID, rels, pivotCreate)
}

func (e *Engine) apply(ctx context.Context, exec dbexec.QueryExecutor, spanName, resource, ownerID string, rels relextract.Relationships, mode pivotMode) (out Outcome, err error) {
	ctx, span := observability.StartSpan(ctx, spanName,
		attribute.String("resourcekit.resource", resource),
		attribute.String("resourcekit.owner_id", ownerID),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("resourcekit.columns", len(out.Columns)),
			attribute.Int("resourcekit.pivots", len(out.Pivots)),
		)
		observability.FinishSpan(span, err, "")
	}()

	res, err := e.registry.Lookup(resource)
	if err != nil {
		return Outcome{}, err
	}
	extraction, err := relextract.ExtractForeignKeyUpdates(res, rels)
	if err != nil {
		return Outcome{}, withOwner(err, ownerID)
	}
	specs, err := e.pivotSpecs(res, extraction.ManyToMany)
	if err != nil {
		return Outcome{}, err
	}

	// Every linked target must exist before the first write. The pivots then
	// skip their own check.
	checked := false
	for i, update := range extraction.ManyToMany {
		if err := e.sync.CheckExists(ctx, exec, specs[i], update.Desired); err != nil {
			return Outcome{}, err
		}
		specs[i].ValidateExists = &checked
	}

	out = Outcome{Columns: extraction.Columns, Pivots: make(map[string]pivot.Result, len(specs))}
	if err := e.updateColumns(ctx, exec, res, ownerID, extraction.Columns); err != nil {
		return Outcome{}, err
	}

	for i, update := range extraction.ManyToMany {
		var result pivot.Result
		switch mode {
		case pivotCreate:
			result, err = e.sync.CreatePivotRecords(ctx, exec, specs[i], ownerID, update.Desired)
		default:
			result, err = e.sync.Sync(ctx, exec, specs[i], ownerID, update.Desired)
		}
		if err != nil {
			return out, err
		}
		out.Pivots[update.Name] = result
	}

	logging.FromContext(ctx).Debug("relationships applied",
		slog.String("resource", resource),
		slog.String("owner_id", ownerID),
		slog.Int("columns", len(out.Columns)),
		slog.Int("pivots", len(out.Pivots)),
	)
	return out, nil
}

func (e *Engine) pivotSpecs(owner *schema.ResourceSchema, updates []relextract.ManyToManyUpdate) ([]pivot.Spec, error) {
	specs := make([]pivot.Spec, len(updates))
	for i, update := range updates {
		spec, err := pivot.SpecFor(e.registry, owner, update.Name, update.Def)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}
	return specs, nil
}

func (e *Engine) updateColumns(ctx context.Context, exec dbexec.QueryExecutor, res *schema.ResourceSchema, ownerID string, columns map[string]interface{}) error {
	if len(columns) == 0 {
		return nil
	}
	q := e.dialect.QuoteIdent
	set := make(map[string]interface{}, len(columns))
	for col, value := range columns {
		set[q(col)] = value
	}
	query, args, err := sq.Update(q(res.TableName)).
		SetMap(set).
		Where(sq.Eq{q(res.PrimaryKey()): ownerID}).
		PlaceholderFormat(e.dialect.Placeholders()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build relationship update: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		normalized := resterr.NormalizeDriverError(err)
		return fmt.Errorf("failed to update relationships of %s %s: %w", res.Name, ownerID, withOwner(normalized, ownerID))
	}
	return nil
}

// withOwner fills in the owner id on errors raised about the owner resource.
func withOwner(err error, ownerID string) error {
	if rerr, ok := err.(*resterr.Error); ok && rerr.ResourceID == "" && rerr.Kind != resterr.KindNotFound {
		rerr.ResourceID = ownerID
	}
	return err
}
