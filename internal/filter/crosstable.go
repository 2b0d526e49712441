package filter

import (
	"resourcekit/internal/joinchain"
)

// ApplyCrossTable handles keys whose field (or any likeOneOf entry) is a
// dotted path. All joins are emitted first so local columns are qualified
// consistently; DISTINCT is applied once if any join can multiply rows.
func ApplyCrossTable(c *Context, search SearchSchema, filters Filters) error {
	var keys []string
	columns := make(map[string]map[string]string)

	for _, key := range sortedKeys(filters) {
		def, ok := search[key]
		if !ok || !c.claim(key, def, StrategyCrossTable) {
			continue
		}
		keys = append(keys, key)
		resolved := make(map[string]string)
		for _, path := range crossTablePaths(key, def) {
			if !joinchain.IsPath(path) {
				continue
			}
			chain, err := c.Resolver.Resolve(c.Resource, path)
			if err != nil {
				return withField(err, key)
			}
			if err := c.emitChain(chain); err != nil {
				return withField(err, key)
			}
			resolved[path] = c.Query.Column(chain.TerminalAlias, chain.Column)
		}
		columns[key] = resolved
	}

	qualify := c.Query.HasJoins()
	for _, key := range keys {
		def := search[key]
		resolved := columns[key]
		group := newGroup(c.Query, qualify)
		column := func(field string) string {
			if col, ok := resolved[field]; ok {
				return col
			}
			return group.Column(field)
		}
		if err := applyComparison(group, key, def, column, filters[key]); err != nil {
			return err
		}
		c.where(group)
		c.Stats.CrossTable++
	}

	if c.RequiresDistinct {
		c.Query.Distinct()
	}
	return nil
}

func crossTablePaths(key string, def SearchFieldDef) []string {
	if len(def.LikeOneOf) > 0 {
		return def.LikeOneOf
	}
	return []string{def.Field(key)}
}

// applyComparison adds the key's predicate to group: likeOneOf, the caller's
// ApplyFilter, or the operator comparison, in that order of precedence.
func applyComparison(group *Group, key string, def SearchFieldDef, column func(string) string, value interface{}) error {
	switch {
	case len(def.LikeOneOf) > 0:
		pattern, err := ContainsPattern(value)
		if err != nil {
			return withField(err, key)
		}
		for _, field := range def.LikeOneOf {
			group.OrWhereLike(column(field), pattern)
		}
		return nil
	case def.ApplyFilter != nil:
		return withField(def.ApplyFilter(group, column(def.Field(key)), value), key)
	default:
		return withField(group.WhereOp(column(def.Field(key)), def.operator(), value), key)
	}
}
