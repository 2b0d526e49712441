// Package naming derives the conventional table, foreign-key and pivot names a
// catalog omits. Irregular words can be pinned in the catalog's naming section.
package naming

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// Config pins irregular inflections, e.g. plurals: {datum: data}.
type Config struct {
	Plurals   map[string]string `mapstructure:"plurals"`
	Singulars map[string]string `mapstructure:"singulars"`
}

// Namer fills in conventional names for resources, foreign keys and pivots.
type Namer struct {
	plurals   map[string]string
	singulars map[string]string
}

// New creates a Namer; nil maps mean no pinned words.
func New(cfg Config) *Namer {
	return &Namer{plurals: cfg.Plurals, singulars: cfg.Singulars}
}

// Default returns a Namer that only uses the inflection rules.
func Default() *Namer {
	return New(Config{})
}

// Pluralize returns the plural of word, preferring a pinned plural.
func (n *Namer) Pluralize(word string) string {
	if plural, ok := n.plurals[word]; ok {
		return plural
	}
	return inflection.Plural(word)
}

// Singularize returns the singular of word, preferring a pinned singular.
func (n *Namer) Singularize(word string) string {
	if singular, ok := n.singulars[word]; ok {
		return singular
	}
	return inflection.Singular(word)
}

// TableName is the table backing a resource: the resource name itself,
// which by convention is already plural.
// Example: "people" -> "people", "person" -> "people"
func (n *Namer) TableName(resource string) string {
	return n.Pluralize(n.Singularize(resource))
}

// ForeignKey is the column a child table uses to reference resource.
// Example: "articles" -> "article_id", "people" -> "person_id"
func (n *Namer) ForeignKey(resource string) string {
	return n.Singularize(resource) + "_id"
}

// RelationName strips the common FK suffixes from a column.
// Example: "author_id" -> "author", "created_by_fk" -> "created_by"
func (n *Namer) RelationName(fkColumn string) string {
	lower := strings.ToLower(fkColumn)
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(lower, suffix) && len(fkColumn) > len(suffix) {
			return fkColumn[:len(fkColumn)-len(suffix)]
		}
	}
	return fkColumn
}

// PivotTable is the conventional join table between two resources: both
// table names in alphabetical order joined by "_".
// Example: ("tags", "articles") -> "articles_tags"
func (n *Namer) PivotTable(left, right string) string {
	names := []string{n.TableName(left), n.TableName(right)}
	sort.Strings(names)
	return strings.Join(names, "_")
}
