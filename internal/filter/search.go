// Package filter compiles a resource's filter map into JOIN and WHERE
// fragments on a live select builder. Compilation runs three ordered phases
// (polymorphic, cross-table, basic) sharing one Context.
package filter

import (
	"sort"

	"resourcekit/internal/joinchain"
)

// Filters maps search keys to requested values (scalar or list).
type Filters map[string]interface{}

// ApplyFunc is a caller-supplied predicate for a search key. It receives the
// key's group, the quoted column of the key's field and the requested value,
// and may only extend the group.
type ApplyFunc func(g *Group, column string, value interface{}) error

// SearchFieldDef describes how one search key filters a resource.
type SearchFieldDef struct {
	// ActualField is the column or dotted path compared; defaults to the key.
	ActualField string
	// PolymorphicField names a belongsToPolymorphic relationship; with
	// TargetFields it makes the key polymorphic.
	PolymorphicField string
	// TargetFields maps each target type to the field (or path) compared on it.
	TargetFields map[string]string
	// LikeOneOf ORs a substring match across several fields or paths.
	LikeOneOf []string
	// FilterUsing is the comparison operator; empty means equality.
	FilterUsing Operator
	// ApplyFilter replaces the built-in comparison.
	ApplyFilter ApplyFunc
}

// SearchSchema maps search keys to their definitions.
type SearchSchema map[string]SearchFieldDef

// Strategy is the phase that owns a search key.
type Strategy int

const (
	StrategyBasic Strategy = iota
	StrategyCrossTable
	StrategyPolymorphic
)

func (s Strategy) String() string {
	switch s {
	case StrategyPolymorphic:
		return "polymorphic"
	case StrategyCrossTable:
		return "cross_table"
	default:
		return "basic"
	}
}

// Strategy resolves the dominant strategy: polymorphic > cross-table > basic.
func (d SearchFieldDef) Strategy() Strategy {
	if d.PolymorphicField != "" && len(d.TargetFields) > 0 {
		return StrategyPolymorphic
	}
	if joinchain.IsPath(d.ActualField) {
		return StrategyCrossTable
	}
	for _, path := range d.LikeOneOf {
		if joinchain.IsPath(path) {
			return StrategyCrossTable
		}
	}
	return StrategyBasic
}

// Field returns the compared field for key.
func (d SearchFieldDef) Field(key string) string {
	if d.ActualField != "" {
		return d.ActualField
	}
	return key
}

func (d SearchFieldDef) operator() Operator {
	if d.FilterUsing == "" {
		return OpEq
	}
	return d.FilterUsing
}

func sortedKeys(filters Filters) []string {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedTargets(targets map[string]string) []string {
	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
