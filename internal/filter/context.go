package filter

import (
	"context"
	"log/slog"

	"resourcekit/internal/joinchain"
	"resourcekit/internal/logging"
	"resourcekit/internal/schema"
)

// Stats counts what a compilation contributed.
type Stats struct {
	Polymorphic int
	CrossTable  int
	Basic       int
	Skipped     int
	Joins       int
}

// Context is the state shared by the phases of one compilation. It is built
// per call and discarded afterwards.
type Context struct {
	Registry schema.Registry
	Resource *schema.ResourceSchema
	Query    *Query
	Resolver *joinchain.Resolver

	// RequiresDistinct is set once any emitted join can multiply rows.
	RequiresDistinct bool
	// HasJoins is set once any phase emitted a join.
	HasJoins bool
	Stats    Stats

	handled map[string]Strategy
	logger  *logging.Logger
}

// NewContext prepares a compilation of filters on resource into q.
func NewContext(registry schema.Registry, resource *schema.ResourceSchema, q *Query) *Context {
	return &Context{
		Registry: registry,
		Resource: resource,
		Query:    q,
		Resolver: joinchain.NewResolver(registry),
		handled:  make(map[string]Strategy),
		logger:   logging.FromContext(context.Background()),
	}
}

// Phase is one stage of the compilation pipeline.
type Phase func(c *Context, search SearchSchema, filters Filters) error

// Phases returns the pipeline in execution order.
func Phases() []Phase {
	return []Phase{ApplyPolymorphic, ApplyCrossTable, ApplyBasic}
}

// Compile runs every phase in order against c.
func Compile(ctx context.Context, c *Context, search SearchSchema, filters Filters) error {
	c.logger = logging.FromContext(ctx).WithFields(
		slog.String("resource", c.Resource.Name),
	)
	for _, phase := range Phases() {
		if err := phase(c, search, filters); err != nil {
			return err
		}
	}
	if c.Stats.Skipped > 0 {
		c.logger.Debug("skipped filters without search definition", slog.Int("count", c.Stats.Skipped))
	}
	return nil
}

// claim marks key as owned by strategy and reports whether the caller should
// handle it (it must match the strategy and not be handled yet).
func (c *Context) claim(key string, def SearchFieldDef, strategy Strategy) bool {
	if _, done := c.handled[key]; done {
		return false
	}
	if def.Strategy() != strategy {
		return false
	}
	c.handled[key] = strategy
	return true
}

// emitChain adds the chain's joins, deduplicated by alias.
func (c *Context) emitChain(chain joinchain.Chain) error {
	for _, link := range chain.Links {
		on := link.On(c.Query.Quote)
		added, err := c.Query.LeftJoin(link.TargetTable, link.TargetAlias, on)
		if err != nil {
			return err
		}
		if added {
			c.Stats.Joins++
			c.logger.Debug("emitted join",
				slog.String("alias", link.TargetAlias),
				slog.String("table", link.TargetTable),
				slog.String("cardinality", link.Cardinality.String()),
			)
		}
	}
	if len(chain.Links) > 0 {
		c.HasJoins = true
	}
	if chain.RequiresDistinct {
		c.RequiresDistinct = true
	}
	return nil
}

// where adds a non-empty group to the statement.
func (c *Context) where(g *Group) {
	if g.Empty() {
		return
	}
	c.Query.Where(g.Sqlizer())
}
