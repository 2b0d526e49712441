// Package joinchain resolves dotted field paths ("author.company.name") into an
// ordered list of table joins, walking the relationship graph of the schema
// registry one segment at a time.
package joinchain

import (
	"fmt"
	"strings"

	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
	"resourcekit/internal/sqlutil"
)

// PathSeparator splits relationship hops in a field path.
const PathSeparator = "."

// Cardinality is the number of target rows a link can match per source row.
type Cardinality int

const (
	One Cardinality = iota
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// Link is one join in a chain: TargetTable AS TargetAlias ON
// SourceAlias.JoinColumnLeft = TargetAlias.JoinColumnRight.
type Link struct {
	SourceAlias     string
	Relationship    string
	TargetResource  string
	TargetTable     string
	TargetAlias     string
	JoinColumnLeft  string
	JoinColumnRight string
	Cardinality     Cardinality
}

// On renders the join condition with the dialect's quoting.
func (l Link) On(quote func(string) string) string {
	return fmt.Sprintf("%s = %s",
		sqlutil.Qualify(quote, l.SourceAlias, l.JoinColumnLeft),
		sqlutil.Qualify(quote, l.TargetAlias, l.JoinColumnRight),
	)
}

// Chain is a resolved path: the joins to emit and the terminal column.
type Chain struct {
	Path             string
	Links            []Link
	TerminalResource string
	TerminalAlias    string
	Column           string
	RequiresDistinct bool
}

// Options tune how strict a resolution is.
type Options struct {
	// AllowMany permits a to-many hop as the last relationship of the path.
	// Polymorphic target paths resolve with AllowMany=false.
	AllowMany bool
}

// IsPath reports whether field crosses at least one relationship.
func IsPath(field string) bool {
	return strings.Contains(field, PathSeparator)
}

// Resolver resolves paths against a registry. A Resolver belongs to one
// compilation: it caches chains by (root alias, path) so repeated filters on
// the same path share aliases and joins.
type Resolver struct {
	registry schema.Registry
	cache    map[string]Chain
}

// NewResolver creates a resolver for one compilation.
func NewResolver(registry schema.Registry) *Resolver {
	return &Resolver{
		registry: registry,
		cache:    make(map[string]Chain),
	}
}

// Resolve resolves path rooted at the source resource's own table.
func (r *Resolver) Resolve(source *schema.ResourceSchema, path string) (Chain, error) {
	return r.ResolveFrom(source, source.TableName, path, Options{AllowMany: true})
}

// ResolveFrom resolves path with rootAlias standing for source's table.
func (r *Resolver) ResolveFrom(source *schema.ResourceSchema, rootAlias, path string, opts Options) (Chain, error) {
	key := fmt.Sprintf("%s|%s|%t", rootAlias, path, opts.AllowMany)
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}

	segments := strings.Split(path, PathSeparator)
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return Chain{}, resterr.Configurationf("empty segment in field path %q", path).
				WithResource(source.Name, "").WithField(path)
		}
	}
	hops, column := segments[:len(segments)-1], segments[len(segments)-1]

	chain := Chain{Path: path, Column: column}
	current := source
	currentAlias := rootAlias
	for i, hop := range hops {
		last := i == len(hops)-1
		links, next, err := r.step(current, currentAlias, hop)
		if err != nil {
			return Chain{}, withPath(err, path)
		}
		for _, link := range links {
			if link.Cardinality != Many {
				continue
			}
			if !opts.AllowMany {
				return Chain{}, resterr.Unsupportedf(
					"relationship %q of %q is to-many and cannot be traversed in path %q",
					hop, current.Name, path,
				).WithResource(current.Name, "").WithRelationship(hop).WithField(path)
			}
			if !last {
				return Chain{}, resterr.Unsupportedf(
					"to-many relationship %q of %q can only be the last hop of path %q",
					hop, current.Name, path,
				).WithResource(current.Name, "").WithRelationship(hop).WithField(path)
			}
			chain.RequiresDistinct = true
		}
		chain.Links = append(chain.Links, links...)
		current = next
		currentAlias = links[len(links)-1].TargetAlias
	}

	chain.TerminalResource = current.Name
	chain.TerminalAlias = currentAlias
	r.cache[key] = chain
	return chain, nil
}

// step resolves a single relationship hop from the resource aliased as alias.
func (r *Resolver) step(current *schema.ResourceSchema, alias, hop string) ([]Link, *schema.ResourceSchema, error) {
	if field, def, ok := current.BelongsToField(hop); ok {
		target, err := r.registry.Lookup(def.BelongsTo)
		if err != nil {
			return nil, nil, err
		}
		return []Link{{
			SourceAlias:     alias,
			Relationship:    hop,
			TargetResource:  target.Name,
			TargetTable:     target.TableName,
			TargetAlias:     sqlutil.Alias(alias, hop),
			JoinColumnLeft:  field,
			JoinColumnRight: target.PrimaryKey(),
			Cardinality:     One,
		}}, target, nil
	}

	def, ok := current.Relationship(hop)
	if !ok {
		return nil, nil, resterr.Configurationf("resource %q has no relationship %q", current.Name, hop).
			WithResource(current.Name, "").WithRelationship(hop)
	}

	switch rel := def.(type) {
	case schema.HasOne:
		return r.reverseLink(current, alias, hop, rel.Resource, rel.ForeignKey, One)
	case schema.HasMany:
		return r.reverseLink(current, alias, hop, rel.Resource, rel.ForeignKey, Many)
	case schema.ManyToMany:
		if rel.Through == "" || rel.ForeignKey == "" || rel.OtherKey == "" {
			return nil, nil, resterr.Configurationf("many-to-many relationship %q of %q is missing through/foreignKey/otherKey", hop, current.Name).
				WithResource(current.Name, "").WithRelationship(hop)
		}
		target, err := r.registry.Lookup(rel.Resource)
		if err != nil {
			return nil, nil, err
		}
		pivotAlias := sqlutil.Alias(alias, hop)
		return []Link{
			{
				SourceAlias:     alias,
				Relationship:    hop,
				TargetTable:     rel.Through,
				TargetAlias:     pivotAlias,
				JoinColumnLeft:  current.PrimaryKey(),
				JoinColumnRight: rel.ForeignKey,
				Cardinality:     Many,
			},
			{
				SourceAlias:     pivotAlias,
				Relationship:    hop,
				TargetResource:  target.Name,
				TargetTable:     target.TableName,
				TargetAlias:     sqlutil.Alias(pivotAlias, target.Name),
				JoinColumnLeft:  rel.OtherKey,
				JoinColumnRight: target.PrimaryKey(),
				Cardinality:     One,
			},
		}, target, nil
	case schema.BelongsToPolymorphic:
		return nil, nil, resterr.Unsupportedf(
			"polymorphic relationship %q of %q cannot be traversed by path; use a polymorphic search field",
			hop, current.Name,
		).WithResource(current.Name, "").WithRelationship(hop)
	default:
		return nil, nil, resterr.Configurationf("relationship %q of %q has unknown kind", hop, current.Name)
	}
}

func (r *Resolver) reverseLink(current *schema.ResourceSchema, alias, hop, resource, foreignKey string, card Cardinality) ([]Link, *schema.ResourceSchema, error) {
	if foreignKey == "" {
		return nil, nil, resterr.Configurationf("relationship %q of %q has no foreign key", hop, current.Name).
			WithResource(current.Name, "").WithRelationship(hop)
	}
	target, err := r.registry.Lookup(resource)
	if err != nil {
		return nil, nil, err
	}
	return []Link{{
		SourceAlias:     alias,
		Relationship:    hop,
		TargetResource:  target.Name,
		TargetTable:     target.TableName,
		TargetAlias:     sqlutil.Alias(alias, hop),
		JoinColumnLeft:  current.PrimaryKey(),
		JoinColumnRight: foreignKey,
		Cardinality:     card,
	}}, target, nil
}

func withPath(err error, path string) error {
	if rerr, ok := err.(*resterr.Error); ok && rerr.Field == "" {
		rerr.Field = path
	}
	return err
}
