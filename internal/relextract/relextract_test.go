package relextract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
)

func commentSchema() *schema.ResourceSchema {
	return &schema.ResourceSchema{
		Name:      "comments",
		TableName: "comments",
		Fields: map[string]schema.FieldDef{
			"body":      {},
			"author_id": {BelongsTo: "people", As: "author"},
		},
		Relationships: map[string]schema.RelationshipDef{
			"commentable": schema.BelongsToPolymorphic{
				Types:     []string{"articles", "videos"},
				TypeField: "commentable_type",
				IDField:   "commentable_id",
			},
			"tags": schema.ManyToMany{
				Resource:   "tags",
				Through:    "comment_tags",
				ForeignKey: "comment_id",
				OtherKey:   "tag_id",
			},
			"replies": schema.HasMany{Resource: "comments", ForeignKey: "parent_id"},
		},
	}
}

func TestLinkage_UnmarshalJSON(t *testing.T) {
	var rels Relationships
	doc := `{
		"author": {"data": {"type": "people", "id": 7}},
		"commentable": {"data": null},
		"tags": {"data": [{"type": "tags", "id": "1"}, {"type": "tags", "id": 2}]},
		"empty": {"data": []},
		"links_only": {"links": {"self": "/x"}}
	}`
	require.NoError(t, json.Unmarshal([]byte(doc), &rels))

	assert.Equal(t, One("people", "7"), rels["author"])
	assert.Equal(t, Null(), rels["commentable"])
	assert.Equal(t, Many(Identifier{"tags", "1"}, Identifier{"tags", "2"}), rels["tags"])
	assert.True(t, rels["empty"].Many)
	assert.Empty(t, rels["empty"].Items)
	assert.False(t, rels["links_only"].Present)
	assert.False(t, rels["missing"].Present)
}

func TestLinkage_UnmarshalErrors(t *testing.T) {
	for _, doc := range []string{
		`{"author": "x"}`,
		`{"author": {"data": "oops"}}`,
		`{"author": {"data": {"type": "people", "id": true}}}`,
		`{"author": {"data": [1]}}`,
	} {
		var rels Relationships
		err := json.Unmarshal([]byte(doc), &rels)
		require.Error(t, err, doc)
		assert.Equal(t, resterr.KindValidation, resterr.KindOf(err), doc)

		var rerr *resterr.Error
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "author", rerr.Relationship, doc)
		assert.Equal(t, "relationships.author", rerr.Field, doc)
	}

	var rels Relationships
	err := json.Unmarshal([]byte(`["author"]`), &rels)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resterr.Validation))
}

func TestLinkage_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Relationships{
		"author": One("people", "1"),
		"parent": Null(),
		"tags":   Many(Identifier{"tags", "3"}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"author": {"data": {"type": "people", "id": "1"}},
		"parent": {"data": null},
		"tags": {"data": [{"type": "tags", "id": "3"}]}
	}`, string(b))
}

func TestExtract_ForeignKeys(t *testing.T) {
	out, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{
		"author":      One("people", "7"),
		"commentable": One("videos", "3"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"author_id":        "7",
		"commentable_type": "videos",
		"commentable_id":   "3",
	}, out.Columns)
	assert.Empty(t, out.ManyToMany)
}

func TestExtract_NullClears(t *testing.T) {
	out, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{
		"author":      Null(),
		"commentable": Null(),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"author_id":        nil,
		"commentable_type": nil,
		"commentable_id":   nil,
	}, out.Columns)
}

func TestExtract_AbsentLeavesUntouched(t *testing.T) {
	out, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{"author": {}})
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestExtract_ManyToMany(t *testing.T) {
	out, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{
		"tags": Many(Identifier{"tags", "2"}, Identifier{"tags", "1"}),
	})
	require.NoError(t, err)
	require.Len(t, out.ManyToMany, 1)
	assert.Equal(t, "tags", out.ManyToMany[0].Name)
	assert.Equal(t, "comment_tags", out.ManyToMany[0].Def.Through)
	assert.Equal(t, []string{"2", "1"}, out.ManyToMany[0].Desired)

	out, err = ExtractForeignKeyUpdates(commentSchema(), Relationships{"tags": Many()})
	require.NoError(t, err)
	require.Len(t, out.ManyToMany, 1)
	assert.Empty(t, out.ManyToMany[0].Desired)
}

func TestExtract_PolymorphicTypeNotAllowed(t *testing.T) {
	out, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{
		"author":      One("people", "7"),
		"commentable": One("podcasts", "1"),
	})
	require.Error(t, err)
	assert.True(t, out.Empty())

	var rerr *resterr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, resterr.KindValidation, rerr.Kind)
	assert.Equal(t, []string{"articles", "videos"}, rerr.Allowed)
	assert.Equal(t, "commentable", rerr.Relationship)
}

func TestExtract_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		rels Relationships
		kind resterr.Kind
	}{
		{"unknown relationship", Relationships{"editor": One("people", "1")}, resterr.KindValidation},
		{"array on belongsTo", Relationships{"author": Many(Identifier{"people", "1"})}, resterr.KindValidation},
		{"wrong belongsTo type", Relationships{"author": One("tags", "1")}, resterr.KindValidation},
		{"missing id", Relationships{"author": One("people", "")}, resterr.KindValidation},
		{"array on polymorphic", Relationships{"commentable": Many()}, resterr.KindValidation},
		{"polymorphic missing id", Relationships{"commentable": One("articles", "")}, resterr.KindValidation},
		{"null on to-many", Relationships{"tags": Null()}, resterr.KindValidation},
		{"single on to-many", Relationships{"tags": One("tags", "1")}, resterr.KindValidation},
		{"wrong to-many type", Relationships{"tags": Many(Identifier{"people", "1"})}, resterr.KindValidation},
		{"has many from owner", Relationships{"replies": Many()}, resterr.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ExtractForeignKeyUpdates(commentSchema(), tt.rels)
			require.Error(t, err)
			assert.Equal(t, tt.kind, resterr.KindOf(err))
			assert.True(t, out.Empty())
		})
	}
}

func TestExtract_UnknownRelationshipListsAllowed(t *testing.T) {
	_, err := ExtractForeignKeyUpdates(commentSchema(), Relationships{"editor": Null()})
	var rerr *resterr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []string{"author", "commentable", "replies", "tags"}, rerr.Allowed)
}
