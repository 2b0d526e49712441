// Package catalog loads resource schemas and their search schemas from a
// YAML or JSON file. Omitted table, foreign-key and pivot names are filled in
// from naming conventions.
//
// Example:
//
//	resources:
//	  articles:
//	    fields:
//	      title: {}
//	      author_id: {belongs_to: people}
//	    relationships:
//	      comments: {kind: hasMany, resource: comments}
//	      tags: {kind: manyToMany, resource: tags}
//	    search:
//	      author_name: {actual_field: author.name, filter_using: like}
//
// Resource, field and relationship names keep their case: they are SQL
// identifiers and must match the references that point at them.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.yaml.in/yaml/v3"

	"resourcekit/internal/filter"
	"resourcekit/internal/naming"
	"resourcekit/internal/resterr"
	"resourcekit/internal/schema"
)

// File is the on-disk catalog layout.
type File struct {
	Naming    naming.Config             `mapstructure:"naming"`
	Resources map[string]ResourceConfig `mapstructure:"resources"`
}

// ResourceConfig describes one resource.
type ResourceConfig struct {
	Table         string                        `mapstructure:"table"`
	IDColumn      string                        `mapstructure:"id_column"`
	Fields        map[string]FieldConfig        `mapstructure:"fields"`
	Relationships map[string]RelationshipConfig `mapstructure:"relationships"`
	Search        map[string]SearchConfig       `mapstructure:"search"`
}

// FieldConfig describes a column; BelongsTo marks it as a foreign key.
type FieldConfig struct {
	BelongsTo string `mapstructure:"belongs_to"`
	As        string `mapstructure:"as"`
}

// RelationshipConfig is the union of every relationship kind's settings.
type RelationshipConfig struct {
	Kind           string   `mapstructure:"kind"`
	Resource       string   `mapstructure:"resource"`
	ForeignKey     string   `mapstructure:"foreign_key"`
	Through        string   `mapstructure:"through"`
	OtherKey       string   `mapstructure:"other_key"`
	ValidateExists *bool    `mapstructure:"validate_exists"`
	Types          []string `mapstructure:"types"`
	TypeField      string   `mapstructure:"type_field"`
	IDField        string   `mapstructure:"id_field"`
}

// SearchConfig describes one search key.
type SearchConfig struct {
	ActualField      string            `mapstructure:"actual_field"`
	PolymorphicField string            `mapstructure:"polymorphic_field"`
	TargetFields     map[string]string `mapstructure:"target_fields"`
	LikeOneOf        []string          `mapstructure:"like_one_of"`
	FilterUsing      string            `mapstructure:"filter_using"`
}

// Catalog is a loaded set of resources.
type Catalog struct {
	Registry schema.MapRegistry
	Search   map[string]filter.SearchSchema
}

// SearchFor returns the search schema of resource (empty when none is declared).
func (c *Catalog) SearchFor(resource string) filter.SearchSchema {
	if s, ok := c.Search[resource]; ok {
		return s
	}
	return filter.SearchSchema{}
}

// Load reads a catalog file; the format follows the file extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %q: %w", path, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cat, err := parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %q: %w", path, err)
	}
	return cat, nil
}

// Read parses a catalog of the given format ("yaml" or "json") from r.
func Read(r io.Reader, format string) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return parse(data, strings.ToLower(format))
}

func parse(data []byte, format string) (*Catalog, error) {
	var raw map[string]interface{}
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, resterr.Configurationf("invalid catalog yaml: %v", err).Wrap(err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil {
			return nil, resterr.Configurationf("invalid catalog json: %v", err).Wrap(err)
		}
	default:
		return nil, resterr.Configurationf("unsupported catalog format %q (use yaml or json)", format)
	}

	for top := range raw {
		if top != "naming" && top != "resources" {
			return nil, resterr.Configurationf("unknown catalog section %q", top)
		}
	}

	var file File
	if err := decode(raw, &file); err != nil {
		return nil, resterr.Configurationf("invalid catalog: %v", err).Wrap(err)
	}
	return Build(file)
}

func decode(input interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
		DecodeHook:  mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Build turns a decoded File into schemas, applying naming defaults and
// checking that every referenced resource exists.
func Build(file File) (*Catalog, error) {
	namer := naming.New(file.Naming)
	cat := &Catalog{
		Registry: make(schema.MapRegistry, len(file.Resources)),
		Search:   make(map[string]filter.SearchSchema, len(file.Resources)),
	}

	for _, name := range sortedNames(file.Resources) {
		rc := file.Resources[name]
		res, err := buildResource(namer, name, rc)
		if err != nil {
			return nil, err
		}
		search, err := buildSearch(name, rc.Search)
		if err != nil {
			return nil, err
		}
		cat.Registry[name] = res
		cat.Search[name] = search
	}

	if err := checkReferences(cat.Registry); err != nil {
		return nil, err
	}
	return cat, nil
}

func buildResource(namer *naming.Namer, name string, rc ResourceConfig) (*schema.ResourceSchema, error) {
	res := &schema.ResourceSchema{
		Name:          name,
		TableName:     rc.Table,
		IDColumn:      rc.IDColumn,
		Fields:        make(map[string]schema.FieldDef, len(rc.Fields)),
		Relationships: make(map[string]schema.RelationshipDef, len(rc.Relationships)),
	}
	if res.TableName == "" {
		res.TableName = namer.TableName(name)
	}

	for field, fc := range rc.Fields {
		def := schema.FieldDef{BelongsTo: fc.BelongsTo, As: fc.As}
		if def.BelongsTo != "" && def.As == "" {
			def.As = namer.RelationName(field)
		}
		res.Fields[field] = def
	}

	for relName, relCfg := range rc.Relationships {
		def, err := buildRelationship(namer, name, relName, relCfg)
		if err != nil {
			return nil, err
		}
		res.Relationships[relName] = def
	}
	return res, nil
}

func buildRelationship(namer *naming.Namer, owner, name string, rc RelationshipConfig) (schema.RelationshipDef, error) {
	fail := func(format string, args ...interface{}) *resterr.Error {
		return resterr.Configurationf(format, args...).WithResource(owner, "").WithRelationship(name)
	}

	switch normalizeKind(rc.Kind) {
	case "hasone":
		if rc.Resource == "" {
			return nil, fail("relationship %q of %q needs a resource", name, owner)
		}
		return schema.HasOne{Resource: rc.Resource, ForeignKey: orDefault(rc.ForeignKey, namer.ForeignKey(owner))}, nil
	case "hasmany":
		if rc.Resource == "" {
			return nil, fail("relationship %q of %q needs a resource", name, owner)
		}
		return schema.HasMany{Resource: rc.Resource, ForeignKey: orDefault(rc.ForeignKey, namer.ForeignKey(owner))}, nil
	case "manytomany":
		if rc.Resource == "" {
			return nil, fail("relationship %q of %q needs a resource", name, owner)
		}
		return schema.ManyToMany{
			Resource:       rc.Resource,
			Through:        orDefault(rc.Through, namer.PivotTable(owner, rc.Resource)),
			ForeignKey:     orDefault(rc.ForeignKey, namer.ForeignKey(owner)),
			OtherKey:       orDefault(rc.OtherKey, namer.ForeignKey(rc.Resource)),
			ValidateExists: rc.ValidateExists,
		}, nil
	case "belongstopolymorphic", "polymorphic":
		if len(rc.Types) == 0 {
			return nil, fail("polymorphic relationship %q of %q declares no types", name, owner)
		}
		types := append([]string(nil), rc.Types...)
		return schema.BelongsToPolymorphic{
			Types:     types,
			TypeField: orDefault(rc.TypeField, name+"_type"),
			IDField:   orDefault(rc.IDField, name+"_id"),
		}, nil
	case "":
		return nil, fail("relationship %q of %q has no kind", name, owner)
	default:
		return nil, fail("relationship %q of %q has unknown kind %q", name, owner, rc.Kind).
			WithAllowed([]string{"hasOne", "hasMany", "manyToMany", "belongsToPolymorphic"})
	}
}

func buildSearch(resource string, configs map[string]SearchConfig) (filter.SearchSchema, error) {
	search := make(filter.SearchSchema, len(configs))
	for key, sc := range configs {
		op, err := filter.ParseOperator(sc.FilterUsing)
		if err != nil {
			if rerr, ok := err.(*resterr.Error); ok {
				rerr.WithResource(resource, "").WithField(key)
			}
			return nil, err
		}
		search[key] = filter.SearchFieldDef{
			ActualField:      sc.ActualField,
			PolymorphicField: sc.PolymorphicField,
			TargetFields:     sc.TargetFields,
			LikeOneOf:        sc.LikeOneOf,
			FilterUsing:      op,
		}
	}
	return search, nil
}

func checkReferences(reg schema.MapRegistry) error {
	for _, name := range reg.Names() {
		res := reg[name]
		for _, field := range res.FieldNames() {
			target := res.Fields[field].BelongsTo
			if target == "" {
				continue
			}
			if _, ok := reg[target]; !ok {
				return resterr.Configurationf("field %q of %q belongs to unknown resource %q", field, name, target).
					WithResource(name, "").WithField(field)
			}
		}
		for _, relName := range res.RelationshipNames() {
			for _, target := range relationshipTargets(res.Relationships[relName]) {
				if _, ok := reg[target]; !ok {
					return resterr.Configurationf("relationship %q of %q references unknown resource %q", relName, name, target).
						WithResource(name, "").WithRelationship(relName)
				}
			}
		}
	}
	return nil
}

func relationshipTargets(def schema.RelationshipDef) []string {
	switch d := def.(type) {
	case schema.HasOne:
		return []string{d.Resource}
	case schema.HasMany:
		return []string{d.Resource}
	case schema.ManyToMany:
		return []string{d.Resource}
	case schema.BelongsToPolymorphic:
		return d.Types
	default:
		return nil
	}
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(kind)))
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func sortedNames(resources map[string]ResourceConfig) []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
