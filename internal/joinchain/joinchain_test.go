package joinchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
	"resourcekit/internal/sqlutil"
)

func testRegistry() schema.MapRegistry {
	return schema.NewMapRegistry(
		&schema.ResourceSchema{
			Name:      "articles",
			TableName: "articles",
			Fields: map[string]schema.FieldDef{
				"title":     {},
				"author_id": {BelongsTo: "people", As: "author"},
			},
			Relationships: map[string]schema.RelationshipDef{
				"comments": schema.HasMany{Resource: "comments", ForeignKey: "article_id"},
				"tags":     schema.ManyToMany{Resource: "tags", Through: "article_tags", ForeignKey: "article_id", OtherKey: "tag_id"},
				"subject":  schema.BelongsToPolymorphic{Types: []string{"books"}, TypeField: "subject_type", IDField: "subject_id"},
				"broken":   schema.HasOne{Resource: "profiles"},
			},
		},
		&schema.ResourceSchema{
			Name:      "people",
			TableName: "people",
			Fields: map[string]schema.FieldDef{
				"name":       {},
				"company_id": {BelongsTo: "companies", As: "company"},
			},
			Relationships: map[string]schema.RelationshipDef{
				"profile":  schema.HasOne{Resource: "profiles", ForeignKey: "person_id"},
				"articles": schema.HasMany{Resource: "articles", ForeignKey: "author_id"},
			},
		},
		&schema.ResourceSchema{Name: "companies", TableName: "companies", Fields: map[string]schema.FieldDef{"name": {}}},
		&schema.ResourceSchema{Name: "profiles", TableName: "profiles", Fields: map[string]schema.FieldDef{"bio": {}}},
		&schema.ResourceSchema{Name: "comments", TableName: "comments", Fields: map[string]schema.FieldDef{"body": {}, "article_id": {BelongsTo: "articles", As: "article"}}},
		&schema.ResourceSchema{Name: "tags", TableName: "tags", Fields: map[string]schema.FieldDef{"label": {}}},
	)
}

func mustLookup(t *testing.T, reg schema.Registry, name string) *schema.ResourceSchema {
	t.Helper()
	res, err := reg.Lookup(name)
	require.NoError(t, err)
	return res
}

func TestResolve_BelongsToChain(t *testing.T) {
	reg := testRegistry()
	r := NewResolver(reg)

	chain, err := r.Resolve(mustLookup(t, reg, "articles"), "author.company.name")
	require.NoError(t, err)

	require.Len(t, chain.Links, 2)
	assert.Equal(t, Link{
		SourceAlias:     "articles",
		Relationship:    "author",
		TargetResource:  "people",
		TargetTable:     "people",
		TargetAlias:     "articles_6author",
		JoinColumnLeft:  "author_id",
		JoinColumnRight: "id",
		Cardinality:     One,
	}, chain.Links[0])
	assert.Equal(t, "articles_6author", chain.Links[1].SourceAlias)
	assert.Equal(t, "articles_6author_7company", chain.Links[1].TargetAlias)
	assert.Equal(t, "companies", chain.TerminalResource)
	assert.Equal(t, "articles_6author_7company", chain.TerminalAlias)
	assert.Equal(t, "name", chain.Column)
	assert.False(t, chain.RequiresDistinct)

	assert.Equal(t, "`articles`.`author_id` = `articles_6author`.`id`", chain.Links[0].On(sqlutil.QuoteIdentifier))
}

func TestResolve_HasOne(t *testing.T) {
	reg := testRegistry()
	chain, err := NewResolver(reg).Resolve(mustLookup(t, reg, "people"), "profile.bio")
	require.NoError(t, err)
	require.Len(t, chain.Links, 1)
	assert.Equal(t, "id", chain.Links[0].JoinColumnLeft)
	assert.Equal(t, "person_id", chain.Links[0].JoinColumnRight)
	assert.Equal(t, One, chain.Links[0].Cardinality)
}

func TestResolve_TerminalHasManyRequiresDistinct(t *testing.T) {
	reg := testRegistry()
	chain, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "comments.body")
	require.NoError(t, err)
	require.Len(t, chain.Links, 1)
	assert.Equal(t, Many, chain.Links[0].Cardinality)
	assert.True(t, chain.RequiresDistinct)
}

func TestResolve_ManyToManyEmitsPivotAndTarget(t *testing.T) {
	reg := testRegistry()
	chain, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "tags.label")
	require.NoError(t, err)
	require.Len(t, chain.Links, 2)
	assert.Equal(t, "article_tags", chain.Links[0].TargetTable)
	assert.Equal(t, "article_id", chain.Links[0].JoinColumnRight)
	assert.Equal(t, "tag_id", chain.Links[1].JoinColumnLeft)
	assert.Equal(t, "tags", chain.Links[1].TargetTable)
	assert.Equal(t, chain.Links[1].TargetAlias, chain.TerminalAlias)
	assert.True(t, chain.RequiresDistinct)
}

func TestResolve_MidPathHasManyRejected(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).Resolve(mustLookup(t, reg, "people"), "articles.author.name")
	require.Error(t, err)
	assert.Equal(t, resterr.KindUnsupported, resterr.KindOf(err))
}

func TestResolveFrom_ManyDisallowed(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).ResolveFrom(mustLookup(t, reg, "articles"), "x", "comments.body", Options{AllowMany: false})
	require.Error(t, err)
	assert.Equal(t, resterr.KindUnsupported, resterr.KindOf(err))
}

func TestResolve_UnknownSegment(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "editor.name")
	require.Error(t, err)
	var rerr *resterr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, resterr.KindConfiguration, rerr.Kind)
	assert.Equal(t, "editor", rerr.Relationship)
	assert.Equal(t, "editor.name", rerr.Field)
}

func TestResolve_MissingForeignKeyIsConfigurationError(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "broken.bio")
	assert.Equal(t, resterr.KindConfiguration, resterr.KindOf(err))
}

func TestResolve_PolymorphicHopRejected(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "subject.title")
	assert.Equal(t, resterr.KindUnsupported, resterr.KindOf(err))
}

func TestResolve_EmptySegment(t *testing.T) {
	reg := testRegistry()
	_, err := NewResolver(reg).Resolve(mustLookup(t, reg, "articles"), "author..name")
	assert.Equal(t, resterr.KindConfiguration, resterr.KindOf(err))
}

func TestResolve_CachedPerPath(t *testing.T) {
	reg := testRegistry()
	r := NewResolver(reg)
	articles := mustLookup(t, reg, "articles")

	first, err := r.Resolve(articles, "author.name")
	require.NoError(t, err)
	second, err := r.Resolve(articles, "author.name")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	sibling, err := r.Resolve(articles, "author.company.name")
	require.NoError(t, err)
	assert.Equal(t, first.Links[0].TargetAlias, sibling.Links[0].TargetAlias, "shared prefix must share alias")
}

func TestIsPath(t *testing.T) {
	assert.True(t, IsPath("author.name"))
	assert.False(t, IsPath("title"))
}
