// Package schema holds the read-only resource definitions consumed by the
// filter compiler and the relationship mutation engine.
package schema

import (
	"sort"
	"strings"

	"resourcekit/internal/resterr"
)

// DefaultIDColumn is the primary key column assumed when a resource does not name one.
const DefaultIDColumn = "id"

// ResourceSchema describes one resource. It is immutable once registered.
type ResourceSchema struct {
	Name          string
	TableName     string
	IDColumn      string
	Fields        map[string]FieldDef
	Relationships map[string]RelationshipDef
}

// FieldDef describes a column of the resource's table. BelongsTo marks the
// column as a foreign key to another resource, reachable by the relation name As.
type FieldDef struct {
	BelongsTo string
	As        string
}

// PrimaryKey returns the id column, defaulting to "id".
func (r *ResourceSchema) PrimaryKey() string {
	if r.IDColumn == "" {
		return DefaultIDColumn
	}
	return r.IDColumn
}

// RelationName returns the relation name of a belongsTo field: As when set,
// otherwise the field name with a trailing "_id" removed.
func (f FieldDef) RelationName(field string) string {
	if f.As != "" {
		return f.As
	}
	return strings.TrimSuffix(field, "_id")
}

// BelongsToField finds the belongsTo field whose relation name is rel.
func (r *ResourceSchema) BelongsToField(rel string) (string, FieldDef, bool) {
	for _, name := range r.FieldNames() {
		def := r.Fields[name]
		if def.BelongsTo == "" {
			continue
		}
		if def.RelationName(name) == rel {
			return name, def, true
		}
	}
	return "", FieldDef{}, false
}

// Relationship returns the named relationship definition.
func (r *ResourceSchema) Relationship(name string) (RelationshipDef, bool) {
	def, ok := r.Relationships[name]
	return def, ok
}

// FieldNames returns field names in sorted order.
func (r *ResourceSchema) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelationshipNames returns relationship names in sorted order.
func (r *ResourceSchema) RelationshipNames() []string {
	names := make([]string, 0, len(r.Relationships))
	for name := range r.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry resolves resource schemas by name at query time.
type Registry interface {
	Lookup(name string) (*ResourceSchema, error)
}

// MapRegistry is an in-memory Registry.
type MapRegistry map[string]*ResourceSchema

// NewMapRegistry indexes the given schemas by name.
func NewMapRegistry(resources ...*ResourceSchema) MapRegistry {
	reg := make(MapRegistry, len(resources))
	for _, res := range resources {
		reg[res.Name] = res
	}
	return reg
}

// Lookup implements Registry.
func (m MapRegistry) Lookup(name string) (*ResourceSchema, error) {
	res, ok := m[name]
	if !ok || res == nil {
		return nil, resterr.Configurationf("unknown resource %q", name).WithResource(name, "")
	}
	return res, nil
}

// Names returns the registered resource names in sorted order.
func (m MapRegistry) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
