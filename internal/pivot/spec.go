// Package pivot keeps many-to-many pivot tables in step with a desired
// membership using the minimal set of deletes and inserts. Rows present
// before and after a sync are never touched, so pivot metadata survives.
package pivot

import (
	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
)

// Spec describes one pivot relationship as the synchronizer sees it.
type Spec struct {
	// Table is the pivot table.
	Table string
	// ForeignKey is the pivot column referencing the owner.
	ForeignKey string
	// OtherKey is the pivot column referencing the target.
	OtherKey string
	// Relationship is the owner's relationship name, for errors and logs.
	Relationship string
	// TargetResource is the related resource name.
	TargetResource string
	// TargetTable and TargetIDColumn locate target rows for existence checks.
	TargetTable    string
	TargetIDColumn string
	// ValidateExists overrides the synchronizer default when set.
	ValidateExists *bool
}

// SpecFor builds the Spec of owner's many-to-many relationship name.
func SpecFor(reg schema.Registry, owner *schema.ResourceSchema, name string, def schema.ManyToMany) (Spec, error) {
	if def.Through == "" || def.ForeignKey == "" || def.OtherKey == "" {
		return Spec{}, resterr.Configurationf("many-to-many relationship %q of %q needs through, foreignKey and otherKey", name, owner.Name).
			WithResource(owner.Name, "").WithRelationship(name)
	}
	target, err := reg.Lookup(def.Resource)
	if err != nil {
		return Spec{}, err
	}
	return Spec{
		Table:          def.Through,
		ForeignKey:     def.ForeignKey,
		OtherKey:       def.OtherKey,
		Relationship:   name,
		TargetResource: target.Name,
		TargetTable:    target.TableName,
		TargetIDColumn: target.PrimaryKey(),
		ValidateExists: def.ValidateExists,
	}, nil
}

func (s Spec) validate() error {
	if s.Table == "" || s.ForeignKey == "" || s.OtherKey == "" {
		return resterr.Configurationf("pivot for relationship %q needs table, foreign key and other key", s.Relationship).
			WithRelationship(s.Relationship)
	}
	return nil
}

func (s Spec) shouldValidate(fallback bool) bool {
	if s.ValidateExists != nil {
		return *s.ValidateExists
	}
	return fallback
}
