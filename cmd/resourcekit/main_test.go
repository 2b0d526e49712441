package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/filter"
	"resourcekit/internal/relextract"
)

const cliCatalog = `
resources:
  articles:
    fields:
      title: {}
    relationships:
      tags: {kind: manyToMany, resource: tags}
    search:
      title: {filter_using: like}
  tags:
    fields:
      label: {}
`

type fixture struct {
	dbPath string
	flags  []string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(cliCatalog), 0o600))

	dbPath := filepath.Join(dir, "blog.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE tags (id INTEGER PRIMARY KEY, label TEXT)`,
		`CREATE TABLE articles_tags (article_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, created_at TEXT, UNIQUE (article_id, tag_id))`,
		`INSERT INTO articles (id, title) VALUES (1, 'Go joins'), (2, 'SQL pivots')`,
		`INSERT INTO tags (id, label) VALUES (1, 'go'), (2, 'sql')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	return fixture{
		dbPath: dbPath,
		flags: []string{
			"--database.driver=sqlite3",
			"--database.dsn=file:" + dbPath + "?_foreign_keys=on",
			"--catalog.path=" + catalogPath,
			"--observability.logging.level=error",
		},
	}
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, f.flags...)
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func (f fixture) pivotCount(t *testing.T) int {
	t.Helper()
	db, err := sql.Open("sqlite3", f.dbPath)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM articles_tags WHERE article_id = 1`).Scan(&count))
	return count
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &stdout, &bytes.Buffer{}))
	assert.Equal(t, "resourcekit dev (none)\n", stdout.String())
}

func TestRun_UsageErrors(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), nil, &bytes.Buffer{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "usage: resourcekit")

	stderr.Reset()
	err = run(context.Background(), []string{"serve"}, &bytes.Buffer{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), `unknown command "serve"`)
}

func TestRun_Compile(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "compile", "--resource=articles", "--filter", "title=pivots")
	require.NoError(t, err)
	var report compileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "articles", report.Resource)
	assert.Contains(t, report.SQL, "LIKE")
	assert.Empty(t, report.Rows)

	out, err = f.run(t, "compile", "--resource=articles", "--filter", "title=pivots", "--execute")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "2", report.Rows[0]["id"])
	assert.Equal(t, "SQL pivots", report.Rows[0]["title"])
}

func TestRun_CompileRequiresResource(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "compile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--resource is required")
}

func TestRun_SyncDryRunThenCommit(t *testing.T) {
	f := newFixture(t)
	payload := `{"tags": {"data": [{"type": "tags", "id": "1"}, {"type": "tags", "id": "2"}]}}`

	out, err := f.run(t, "sync", "--resource=articles", "--id=1", "--relationships", payload, "--dry-run")
	require.NoError(t, err)
	var report syncReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	assert.ElementsMatch(t, []string{"1", "2"}, report.Pivots["tags"].Added)
	assert.Equal(t, 0, f.pivotCount(t))

	out, err = f.run(t, "sync", "--resource=articles", "--id=1", "--relationships", payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.DryRun)
	assert.Equal(t, 2, f.pivotCount(t))
}

func TestRun_SyncMissingTargetRollsBack(t *testing.T) {
	f := newFixture(t)
	payload := `{"tags": {"data": [{"type": "tags", "id": "1"}, {"type": "tags", "id": "99"}]}}`

	_, err := f.run(t, "sync", "--resource=articles", "--id=1", "--relationships", payload)
	require.Error(t, err)
	assert.Equal(t, 0, f.pivotCount(t))
}

func TestRun_Describe(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "describe", "--resource=articles")
	require.NoError(t, err)

	var reports []pivotReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "tags", reports[0].Relationship)
	assert.Equal(t, "articles_tags", reports[0].Table)
	assert.Equal(t, "attribute", reports[0].Type)
	assert.Equal(t, []string{"created_at"}, reports[0].AttributeColumns)
}

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		raw     string
		want    filter.Filters
		wantErr bool
	}{
		{name: "empty", want: filter.Filters{}},
		{name: "pairs", pairs: []string{"title=Go", "author = Smith"}, want: filter.Filters{"title": "Go", "author": " Smith"}},
		{name: "value keeps equals", pairs: []string{"q=a=b"}, want: filter.Filters{"q": "a=b"}},
		{name: "json", raw: `{"rating": [4, 5]}`, want: filter.Filters{"rating": []interface{}{float64(4), float64(5)}}},
		{name: "pairs override json", pairs: []string{"title=B"}, raw: `{"title": "A"}`, want: filter.Filters{"title": "B"}},
		{name: "missing equals", pairs: []string{"title"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
		{name: "bad json", raw: `[1]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilters(tt.pairs, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadRelationships(t *testing.T) {
	bare := `{"author": {"data": {"type": "people", "id": "7"}}}`
	doc := `{"data": {"type": "articles", "id": "1", "relationships": ` + bare + `}}`

	rels, err := readRelationships(bare, "")
	require.NoError(t, err)
	assert.Equal(t, relextract.One("people", "7"), rels["author"])

	rels, err = readRelationships(doc, "")
	require.NoError(t, err)
	assert.Equal(t, relextract.One("people", "7"), rels["author"])

	path := filepath.Join(t.TempDir(), "rels.json")
	require.NoError(t, os.WriteFile(path, []byte(bare), 0o600))
	rels, err = readRelationships("", path)
	require.NoError(t, err)
	assert.Contains(t, rels, "author")

	orig := stdin
	stdin = strings.NewReader(`{"tags": {"data": []}}`)
	defer func() { stdin = orig }()
	rels, err = readRelationships("", "-")
	require.NoError(t, err)
	assert.Equal(t, relextract.Many(), rels["tags"])

	_, err = readRelationships(bare, path)
	assert.Error(t, err)
	_, err = readRelationships("  ", "")
	assert.Error(t, err)
	_, err = readRelationships(`[]`, "")
	assert.Error(t, err)
}
