package schema

// Kind identifies a relationship variant.
type Kind int

const (
	KindBelongsToPolymorphic Kind = iota
	KindHasOne
	KindHasMany
	KindManyToMany
)

// String returns the catalog spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindBelongsToPolymorphic:
		return "belongsToPolymorphic"
	case KindHasOne:
		return "hasOne"
	case KindHasMany:
		return "hasMany"
	case KindManyToMany:
		return "manyToMany"
	default:
		return "unknown"
	}
}

// RelationshipDef is a closed sum type; the unexported method keeps other
// packages from adding variants so type switches stay exhaustive.
type RelationshipDef interface {
	Kind() Kind
	relationship()
}

// BelongsToPolymorphic stores a (type, id) column pair on the owner's table.
type BelongsToPolymorphic struct {
	Types     []string
	TypeField string
	IDField   string
}

// HasOne points at a single row of Resource whose ForeignKey references the owner.
type HasOne struct {
	Resource   string
	ForeignKey string
}

// HasMany points at rows of Resource whose ForeignKey references the owner.
type HasMany struct {
	Resource   string
	ForeignKey string
}

// ManyToMany links owner and Resource through a pivot table. ForeignKey is the
// pivot column referencing the owner, OtherKey the column referencing Resource.
type ManyToMany struct {
	Resource       string
	Through        string
	ForeignKey     string
	OtherKey       string
	ValidateExists *bool
}

func (BelongsToPolymorphic) Kind() Kind { return KindBelongsToPolymorphic }
func (HasOne) Kind() Kind               { return KindHasOne }
func (HasMany) Kind() Kind              { return KindHasMany }
func (ManyToMany) Kind() Kind           { return KindManyToMany }

func (BelongsToPolymorphic) relationship() {}
func (HasOne) relationship()               {}
func (HasMany) relationship()              {}
func (ManyToMany) relationship()           {}

// AllowsType reports whether t is one of the declared target types.
func (p BelongsToPolymorphic) AllowsType(t string) bool {
	for _, allowed := range p.Types {
		if allowed == t {
			return true
		}
	}
	return false
}

// ShouldValidateExists reports whether newly referenced rows must be checked
// before pivot inserts. Validation is on unless explicitly disabled.
func (m ManyToMany) ShouldValidateExists() bool {
	return m.ValidateExists == nil || *m.ValidateExists
}
