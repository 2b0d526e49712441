package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"resourcekit/internal/app"
	"resourcekit/internal/dbexec"
	"resourcekit/internal/engine"
	"resourcekit/internal/filter"
	"resourcekit/internal/logging"
	"resourcekit/internal/pivot"
	"resourcekit/internal/relextract"
	"resourcekit/internal/schema"
)

var stdin io.Reader = os.Stdin

var compileCommand = command{
	summary: "Compile list filters for a resource into SQL (optionally run it)",
	define: func(fs *pflag.FlagSet) {
		fs.String("resource", "", "Resource to list")
		fs.StringArray("filter", nil, "Filter as key=value (repeatable)")
		fs.String("filters", "", "Filters as a JSON object")
		fs.Bool("execute", false, "Run the query and print matching rows")
		fs.Uint64("limit", 0, "Row limit when executing (0 for none)")
	},
	connect: func(fs *pflag.FlagSet) bool {
		execute, _ := fs.GetBool("execute")
		return execute
	},
	run: runCompile,
}

var syncCommand = command{
	summary: "Apply a relationships payload to one resource row",
	define: func(fs *pflag.FlagSet) {
		fs.String("resource", "", "Owner resource")
		fs.String("id", "", "Owner row id")
		fs.String("relationships", "", "Relationships object as JSON")
		fs.String("input", "", "File holding the relationships JSON (- for stdin)")
		fs.Bool("create", false, "Treat the owner as freshly created: only add pivot rows")
		fs.Bool("dry-run", false, "Roll the transaction back instead of committing")
	},
	connect: func(*pflag.FlagSet) bool { return true },
	run:     runSync,
}

var describeCommand = command{
	summary: "Classify the pivot tables of many-to-many relationships",
	define: func(fs *pflag.FlagSet) {
		fs.String("resource", "", "Only describe this resource")
	},
	connect: func(*pflag.FlagSet) bool { return true },
	run:     runDescribe,
}

type compileReport struct {
	Resource string                   `json:"resource"`
	SQL      string                   `json:"sql"`
	Args     []interface{}            `json:"args"`
	Rows     []map[string]interface{} `json:"rows,omitempty"`
}

func runCompile(ctx context.Context, a *app.App, fs *pflag.FlagSet, stdout io.Writer) error {
	resource, _ := fs.GetString("resource")
	if resource == "" {
		return fmt.Errorf("--resource is required")
	}
	pairs, _ := fs.GetStringArray("filter")
	raw, _ := fs.GetString("filters")
	filters, err := parseFilters(pairs, raw)
	if err != nil {
		return err
	}

	builder, err := a.Engine().ListQuery(ctx, resource, filters)
	if err != nil {
		return err
	}
	if limit, _ := fs.GetUint64("limit"); limit > 0 {
		builder = builder.Limit(limit)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to render query: %w", err)
	}
	report := compileReport{Resource: resource, SQL: query, Args: args}
	if report.Args == nil {
		report.Args = []interface{}{}
	}

	if execute, _ := fs.GetBool("execute"); execute {
		rows, err := dbexec.NewStandardExecutor(a.DB()).QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to run query: %w", err)
		}
		report.Rows, err = scanRows(rows)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info("query executed",
			slog.String("resource", resource),
			slog.Int("rows", len(report.Rows)),
		)
	}
	return writeJSON(stdout, report)
}

type syncReport struct {
	Resource string                       `json:"resource"`
	ID       string                       `json:"id"`
	DryRun   bool                         `json:"dry_run"`
	Columns  map[string]interface{}       `json:"columns"`
	Pivots   map[string]pivotResultReport `json:"pivots"`
}

type pivotResultReport struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

func runSync(ctx context.Context, a *app.App, fs *pflag.FlagSet, stdout io.Writer) (err error) {
	resource, _ := fs.GetString("resource")
	id, _ := fs.GetString("id")
	if resource == "" || id == "" {
		return fmt.Errorf("--resource and --id are required")
	}
	raw, _ := fs.GetString("relationships")
	input, _ := fs.GetString("input")
	rels, err := readRelationships(raw, input)
	if err != nil {
		return err
	}
	create, _ := fs.GetBool("create")
	dryRun, _ := fs.GetBool("dry-run")

	tx, err := dbexec.BeginTx(ctx, a.DB(), nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil || dryRun {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.FromContext(ctx).Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
	}()

	var out engine.Outcome
	if create {
		out, err = a.Engine().CreateRelationships(ctx, tx, resource, id, rels)
	} else {
		out, err = a.Engine().UpdateRelationships(ctx, tx, resource, id, rels)
	}
	if err != nil {
		return err
	}
	if !dryRun {
		if err = tx.Commit(); err != nil {
			return err
		}
	}
	return writeJSON(stdout, newSyncReport(resource, id, dryRun, out))
}

func newSyncReport(resource, id string, dryRun bool, out engine.Outcome) syncReport {
	report := syncReport{
		Resource: resource,
		ID:       id,
		DryRun:   dryRun,
		Columns:  out.Columns,
		Pivots:   make(map[string]pivotResultReport, len(out.Pivots)),
	}
	if report.Columns == nil {
		report.Columns = map[string]interface{}{}
	}
	for name, res := range out.Pivots {
		report.Pivots[name] = pivotResultReport{
			Added:     nonNil(res.Added),
			Removed:   nonNil(res.Removed),
			Unchanged: nonNil(res.Unchanged),
		}
	}
	return report
}

type pivotReport struct {
	Resource         string   `json:"resource"`
	Relationship     string   `json:"relationship"`
	Table            string   `json:"table"`
	Type             string   `json:"type"`
	AttributeColumns []string `json:"attribute_columns"`
}

func runDescribe(ctx context.Context, a *app.App, fs *pflag.FlagSet, stdout io.Writer) error {
	only, _ := fs.GetString("resource")
	reg := a.Catalog().Registry
	names := reg.Names()
	if only != "" {
		if _, err := reg.Lookup(only); err != nil {
			return err
		}
		names = []string{only}
	}

	exec := dbexec.NewStandardExecutor(a.DB())
	reports := []pivotReport{}
	for _, name := range names {
		owner, _ := reg.Lookup(name)
		for _, relName := range owner.RelationshipNames() {
			def, _ := owner.Relationship(relName)
			m2m, ok := def.(schema.ManyToMany)
			if !ok {
				continue
			}
			spec, err := pivot.SpecFor(reg, owner, relName, m2m)
			if err != nil {
				return err
			}
			info, err := pivot.Describe(ctx, exec, a.Dialect(), spec)
			if err != nil {
				return err
			}
			reports = append(reports, pivotReport{
				Resource:         name,
				Relationship:     relName,
				Table:            info.Table,
				Type:             info.Type.String(),
				AttributeColumns: nonNil(info.AttributeColumns),
			})
		}
	}
	return writeJSON(stdout, reports)
}

// parseFilters merges a JSON filter object with key=value pairs; pairs win.
func parseFilters(pairs []string, raw string) (filter.Filters, error) {
	filters := filter.Filters{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return nil, fmt.Errorf("invalid --filters JSON: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --filter %q: expected key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

// readRelationships accepts either a bare relationships object or a
// document of the form {"data": {"relationships": {...}}}.
func readRelationships(raw, input string) (relextract.Relationships, error) {
	if raw != "" && input != "" {
		return nil, fmt.Errorf("--relationships and --input are mutually exclusive")
	}
	payload := []byte(raw)
	if input != "" {
		var err error
		if input == "-" {
			payload, err = io.ReadAll(stdin)
		} else {
			payload, err = os.ReadFile(input)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read relationships input: %w", err)
		}
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("a relationships payload is required (--relationships or --input)")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("relationships payload must be a JSON object: %w", err)
	}
	if data, ok := top["data"]; ok && len(top) == 1 {
		var doc struct {
			Relationships json.RawMessage `json:"relationships"`
		}
		if err := json.Unmarshal(data, &doc); err == nil && len(doc.Relationships) > 0 {
			payload = doc.Relationships
		}
	}

	var rels relextract.Relationships
	if err := json.Unmarshal(payload, &rels); err != nil {
		return nil, fmt.Errorf("invalid relationships payload: %w", err)
	}
	return rels, nil
}

func scanRows(rows dbexec.Rows) ([]map[string]interface{}, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				row[col] = values[i].String
			} else {
				row[col] = nil
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
