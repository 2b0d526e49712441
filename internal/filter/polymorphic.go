package filter

import (
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"resourcekit/internal/joinchain"
	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
	"resourcekit/internal/sqlutil"
)

// ApplyPolymorphic handles keys whose field is chosen by a polymorphic type
// column. Each target type gets its own LEFT JOIN, conditioned on the type
// column, so rows of other types join NULL. The WHERE contribution is
// ((type = A AND cond(A)) OR (type = B AND cond(B)) ...).
func ApplyPolymorphic(c *Context, search SearchSchema, filters Filters) error {
	for _, key := range sortedKeys(filters) {
		def, ok := search[key]
		if !ok || !c.claim(key, def, StrategyPolymorphic) {
			continue
		}
		group, err := c.polymorphicGroup(key, def, filters[key])
		if err != nil {
			return err
		}
		c.where(group)
		c.HasJoins = true
		c.Stats.Polymorphic++
	}
	return nil
}

func (c *Context) polymorphicGroup(key string, def SearchFieldDef, value interface{}) (*Group, error) {
	res := c.Resource
	relDef, ok := res.Relationship(def.PolymorphicField)
	if !ok {
		return nil, resterr.Configurationf("search field %q references unknown relationship %q", key, def.PolymorphicField).
			WithResource(res.Name, "").WithField(key)
	}
	poly, ok := relDef.(schema.BelongsToPolymorphic)
	if !ok {
		return nil, resterr.Configurationf("search field %q: relationship %q is %s, not belongsToPolymorphic", key, def.PolymorphicField, relDef.Kind()).
			WithResource(res.Name, "").WithField(key)
	}
	if poly.TypeField == "" || poly.IDField == "" {
		return nil, resterr.Configurationf("polymorphic relationship %q of %q is missing typeField/idField", def.PolymorphicField, res.Name).
			WithResource(res.Name, "").WithRelationship(def.PolymorphicField)
	}

	root := c.Query.Table()
	typeColumn := c.Query.Column(root, poly.TypeField)
	idColumn := c.Query.Column(root, poly.IDField)
	op := def.operator()
	group := newGroup(c.Query, true)

	for _, targetType := range sortedTargets(def.TargetFields) {
		if !poly.AllowsType(targetType) {
			return nil, resterr.Configurationf("search field %q targets type %q not declared by %q", key, targetType, def.PolymorphicField).
				WithResource(res.Name, "").WithField(key).WithAllowed(poly.Types)
		}
		target, err := c.Registry.Lookup(targetType)
		if err != nil {
			return nil, err
		}

		typeAlias := sqlutil.AliasPath(root, def.PolymorphicField, targetType)
		on := fmt.Sprintf("%s = ? AND %s = %s", typeColumn, idColumn, c.Query.Column(typeAlias, target.PrimaryKey()))
		added, err := c.Query.LeftJoin(target.TableName, typeAlias, on, targetType)
		if err != nil {
			return nil, withField(err, key)
		}
		if added {
			c.Stats.Joins++
			c.logger.Debug("emitted polymorphic join",
				slog.String("key", key),
				slog.String("type", targetType),
				slog.String("alias", typeAlias),
			)
		}

		path := def.TargetFields[targetType]
		columnAlias, column := typeAlias, path
		if joinchain.IsPath(path) {
			chain, err := c.Resolver.ResolveFrom(target, typeAlias, path, joinchain.Options{AllowMany: false})
			if err != nil {
				return nil, err
			}
			if err := c.emitChain(chain); err != nil {
				return nil, withField(err, key)
			}
			columnAlias, column = chain.TerminalAlias, chain.Column
		}

		cond, err := op.Condition(c.Query.Column(columnAlias, column), value)
		if err != nil {
			return nil, withField(err, key)
		}
		group.OrWhere(sq.And{sq.Eq{typeColumn: targetType}, cond})
	}
	return group, nil
}

func withField(err error, field string) error {
	if rerr, ok := err.(*resterr.Error); ok && rerr.Field == "" {
		rerr.Field = field
	}
	return err
}
