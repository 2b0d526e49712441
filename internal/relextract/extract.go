package relextract

import (
	"sort"

	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
)

// ManyToManyUpdate is the desired membership of one many-to-many relationship.
type ManyToManyUpdate struct {
	Name    string
	Def     schema.ManyToMany
	Desired []string
}

// Extraction is what a relationships object changes on the owner.
type Extraction struct {
	// Columns are foreign-key column assignments on the owner's table; a nil
	// value clears the column.
	Columns    map[string]interface{}
	ManyToMany []ManyToManyUpdate
}

// Empty reports whether nothing would change.
func (e Extraction) Empty() bool {
	return len(e.Columns) == 0 && len(e.ManyToMany) == 0
}

// ExtractForeignKeyUpdates maps rels onto res. Relationships are processed in
// name order and the first invalid one aborts the whole extraction.
func ExtractForeignKeyUpdates(res *schema.ResourceSchema, rels Relationships) (Extraction, error) {
	out := Extraction{Columns: make(map[string]interface{})}

	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		linkage := rels[name]
		if !linkage.Present {
			continue
		}
		if err := extractOne(res, name, linkage, &out); err != nil {
			return Extraction{}, err
		}
	}
	return out, nil
}

func extractOne(res *schema.ResourceSchema, name string, linkage Linkage, out *Extraction) error {
	invalid := func(format string, args ...interface{}) *resterr.Error {
		return resterr.Validationf(format, args...).
			WithResource(res.Name, "").
			WithRelationship(name).
			WithField("relationships." + name)
	}

	if field, def, ok := res.BelongsToField(name); ok {
		if linkage.Many {
			return invalid("relationship %q is to-one and cannot take an array", name)
		}
		if linkage.Null {
			out.Columns[field] = nil
			return nil
		}
		if err := checkIdentifier(linkage.One, def.BelongsTo, invalid); err != nil {
			return err
		}
		out.Columns[field] = linkage.One.ID
		return nil
	}

	relDef, ok := res.Relationship(name)
	if !ok {
		return invalid("unknown relationship %q for %q", name, res.Name).WithAllowed(relationshipNames(res))
	}

	switch def := relDef.(type) {
	case schema.BelongsToPolymorphic:
		if linkage.Many {
			return invalid("relationship %q is to-one and cannot take an array", name)
		}
		if linkage.Null {
			out.Columns[def.TypeField] = nil
			out.Columns[def.IDField] = nil
			return nil
		}
		if !def.AllowsType(linkage.One.Type) {
			return invalid("type %q is not allowed for relationship %q", linkage.One.Type, name).WithAllowed(def.Types)
		}
		if linkage.One.ID == "" {
			return invalid("relationship %q requires an id", name)
		}
		out.Columns[def.TypeField] = linkage.One.Type
		out.Columns[def.IDField] = linkage.One.ID
		return nil

	case schema.ManyToMany:
		if linkage.Null {
			return invalid("relationship %q is to-many and cannot be null", name)
		}
		if !linkage.Many {
			return invalid("relationship %q is to-many and requires an array", name)
		}
		desired := make([]string, 0, len(linkage.Items))
		for _, item := range linkage.Items {
			if err := checkIdentifier(item, def.Resource, invalid); err != nil {
				return err
			}
			desired = append(desired, item.ID)
		}
		out.ManyToMany = append(out.ManyToMany, ManyToManyUpdate{Name: name, Def: def, Desired: desired})
		return nil

	case schema.HasOne, schema.HasMany:
		return resterr.Unsupportedf("relationship %q of %q is owned by %q and cannot be set from this side", name, res.Name, relatedResource(def)).
			WithResource(res.Name, "").WithRelationship(name)

	default:
		return resterr.Configurationf("relationship %q of %q has unsupported kind %s", name, res.Name, relDef.Kind()).
			WithResource(res.Name, "").WithRelationship(name)
	}
}

func checkIdentifier(id Identifier, want string, invalid func(string, ...interface{}) *resterr.Error) error {
	if id.Type != want {
		return invalid("expected type %q, got %q", want, id.Type).WithAllowed([]string{want})
	}
	if id.ID == "" {
		return invalid("resource identifier of type %q requires an id", want)
	}
	return nil
}

func relatedResource(def schema.RelationshipDef) string {
	switch d := def.(type) {
	case schema.HasOne:
		return d.Resource
	case schema.HasMany:
		return d.Resource
	}
	return ""
}

func relationshipNames(res *schema.ResourceSchema) []string {
	names := res.RelationshipNames()
	for _, field := range res.FieldNames() {
		def := res.Fields[field]
		if def.BelongsTo != "" {
			names = append(names, def.RelationName(field))
		}
	}
	sort.Strings(names)
	return names
}
