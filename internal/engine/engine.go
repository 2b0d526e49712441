// Package engine is the entry point a REST layer calls: it compiles list
// filters for a resource and applies relationship payloads (foreign-key
// columns and many-to-many pivots) on the caller's executor.
package engine

import (
	"context"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"resourcekit/internal/filter"
	"resourcekit/internal/logging"
	"resourcekit/internal/observability"
	"resourcekit/internal/pivot"
	"resourcekit/internal/schema"
	"resourcekit/internal/sqlutil"
)

// SearchSource supplies the search schema of a resource.
type SearchSource interface {
	SearchFor(resource string) filter.SearchSchema
}

// SearchMap is a SearchSource backed by a map.
type SearchMap map[string]filter.SearchSchema

// SearchFor implements SearchSource.
func (m SearchMap) SearchFor(resource string) filter.SearchSchema {
	return m[resource]
}

// Options configures an Engine.
type Options struct {
	Registry schema.Registry
	Search   SearchSource
	Dialect  sqlutil.Dialect
	// Synchronizer defaults to one for Dialect with existence checks on.
	Synchronizer *pivot.Synchronizer
	Metrics      *observability.Metrics
}

// Engine is safe for concurrent use; all per-call state lives in the call.
type Engine struct {
	registry schema.Registry
	search   SearchSource
	dialect  sqlutil.Dialect
	sync     *pivot.Synchronizer
	metrics  *observability.Metrics
}

// New creates an Engine.
func New(opts Options) *Engine {
	dialect := opts.Dialect
	if dialect == nil {
		dialect = sqlutil.MySQL
	}
	search := opts.Search
	if search == nil {
		search = SearchMap{}
	}
	sync := opts.Synchronizer
	if sync == nil {
		sync = pivot.NewSynchronizer(dialect, pivot.WithMetrics(opts.Metrics))
	}
	return &Engine{
		registry: opts.Registry,
		search:   search,
		dialect:  dialect,
		sync:     sync,
		metrics:  opts.Metrics,
	}
}

// Compile runs the filter phases for resource against a fresh
// SELECT table.* FROM table and returns the compilation state.
func (e *Engine) Compile(ctx context.Context, resource string, filters filter.Filters) (c *filter.Context, err error) {
	ctx, span := observability.StartSpan(ctx, "filter.compile",
		attribute.String("resourcekit.resource", resource),
		attribute.Int("resourcekit.filter.keys", len(filters)),
	)
	defer func() {
		if c != nil {
			span.SetAttributes(
				attribute.Int("resourcekit.filter.joins", c.Stats.Joins),
				attribute.Bool("resourcekit.filter.distinct", c.Query.IsDistinct()),
			)
		}
		observability.FinishSpan(span, err, "")
		e.metrics.RecordCompile(ctx, resource, compileStats(c), err)
	}()

	res, err := e.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}
	c = filter.NewContext(e.registry, res, filter.NewQuery(e.dialect, res.TableName))
	if err := filter.Compile(ctx, c, e.search.SearchFor(resource), filters); err != nil {
		logging.FromContext(ctx).Debug("filter compilation failed", observability.ErrorLogFields(err)...)
		return nil, err
	}

	logging.FromContext(ctx).Debug("filters compiled",
		slog.String("resource", resource),
		slog.Int("polymorphic", c.Stats.Polymorphic),
		slog.Int("cross_table", c.Stats.CrossTable),
		slog.Int("basic", c.Stats.Basic),
		slog.Int("joins", c.Stats.Joins),
	)
	return c, nil
}

// ListQuery returns the filtered SELECT for resource with the dialect's
// placeholder format applied. Callers add ordering and paging.
func (e *Engine) ListQuery(ctx context.Context, resource string, filters filter.Filters) (sq.SelectBuilder, error) {
	c, err := e.Compile(ctx, resource, filters)
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	return c.Query.Builder(), nil
}

func compileStats(c *filter.Context) observability.CompileStats {
	if c == nil {
		return observability.CompileStats{}
	}
	return observability.CompileStats{
		ByStrategy: map[string]int{
			filter.StrategyPolymorphic.String(): c.Stats.Polymorphic,
			filter.StrategyCrossTable.String():  c.Stats.CrossTable,
			filter.StrategyBasic.String():       c.Stats.Basic,
		},
		Skipped: c.Stats.Skipped,
		Joins:   c.Stats.Joins,
	}
}
