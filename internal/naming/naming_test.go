package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"analysis", "analyses"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"statuses", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestOverrides(t *testing.T) {
	namer := New(Config{
		Plurals:   map[string]string{"datum": "data"},
		Singulars: map[string]string{"staff": "staff_member"},
	})

	assert.Equal(t, "data", namer.Pluralize("datum"))
	assert.Equal(t, "staff_member", namer.Singularize("staff"))
	assert.Equal(t, "staff_member_id", namer.ForeignKey("staff"))
}

func TestNew_NilOverrides(t *testing.T) {
	namer := New(Config{})
	assert.Equal(t, "users", namer.Pluralize("user"))
}

func TestTableName(t *testing.T) {
	namer := Default()
	assert.Equal(t, "people", namer.TableName("people"))
	assert.Equal(t, "people", namer.TableName("person"))
	assert.Equal(t, "articles", namer.TableName("articles"))
}

func TestForeignKey(t *testing.T) {
	namer := Default()
	assert.Equal(t, "article_id", namer.ForeignKey("articles"))
	assert.Equal(t, "person_id", namer.ForeignKey("people"))
	assert.Equal(t, "category_id", namer.ForeignKey("categories"))
}

func TestRelationName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"author_id", "author"},
		{"created_by_fk", "created_by"},
		{"Owner_ID", "Owner"},
		{"name", "name"},
		{"_id", "_id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.RelationName(tt.input))
		})
	}
}

func TestPivotTable(t *testing.T) {
	namer := Default()
	assert.Equal(t, "articles_tags", namer.PivotTable("tags", "articles"))
	assert.Equal(t, "articles_tags", namer.PivotTable("articles", "tags"))
	assert.Equal(t, "people_roles", namer.PivotTable("person", "roles"))
}
