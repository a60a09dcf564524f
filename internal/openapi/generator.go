// internal/openapi/generator.go
//
// OpenAPI 3 document derived from the schema snapshot.
//
// Context
// -------
// The contract is a pure projection of the current Snapshot: one
// component schema per table (column types mapped from their semantic
// class) and the generic CRUD paths.  Generation is memoized by snapshot
// hash, so the document regenerates exactly when the schema changes and
// is otherwise served from memory.
//
// Notes
// -----
// • The document uses plain maps rather than a generated client model;
//   the shape is small and stable.
// • Oxford commas, two spaces after periods.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yanizio/tabula/internal/model"
	"github.com/yanizio/tabula/internal/schema"
)

// semantic → OpenAPI (type, format) mapping, one explicit table.
var typeMap = map[string][2]string{
	schema.TypeInteger:  {"integer", "int64"},
	schema.TypeNumber:   {"number", "double"},
	schema.TypeBoolean:  {"boolean", ""},
	schema.TypeTemporal: {"string", "date-time"},
	schema.TypeObject:   {"object", ""},
	schema.TypeString:   {"string", ""},
}

// Generator memoizes rendered documents per snapshot hash.
type Generator struct {
	mu   sync.Mutex
	hash string
	doc  map[string]any
	yml  []byte
	js   []byte
}

// NewGenerator returns an empty, lazily filled Generator.
func NewGenerator() *Generator { return &Generator{} }

// YAML returns the document rendered as YAML for the given snapshot.
func (g *Generator) YAML(snap *schema.Snapshot) ([]byte, error) {
	if err := g.ensure(snap); err != nil {
		return nil, err
	}
	return g.yml, nil
}

// JSON returns the document rendered as JSON for the given snapshot.
func (g *Generator) JSON(snap *schema.Snapshot) ([]byte, error) {
	if err := g.ensure(snap); err != nil {
		return nil, err
	}
	return g.js, nil
}

func (g *Generator) ensure(snap *schema.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hash == snap.Hash && g.doc != nil {
		return nil
	}

	doc := Build(snap)
	yml, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("openapi: yaml render: %w", err)
	}
	js, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("openapi: json render: %w", err)
	}

	g.hash, g.doc, g.yml, g.js = snap.Hash, doc, yml, js
	return nil
}

// Build assembles the document.  Exported for tests; callers normally go
// through the memoizing YAML/JSON accessors.
func Build(snap *schema.Snapshot) map[string]any {
	schemas := map[string]any{}
	paths := map[string]any{}
	entities := model.Build(snap)

	names := make([]string, 0, len(snap.Tables))
	for name := range snap.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := snap.Tables[name]
		schemas[name] = tableSchema(t, entities[name])
		addPaths(paths, t)
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Tabula generic CRUD API",
			"version":     snap.Hash[:12],
			"description": fmt.Sprintf("Generated from database %q.", snap.Database),
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
		},
	}
}

func tableSchema(t schema.TableInfo, ent *model.Entity) map[string]any {
	props := map[string]any{}
	var required []string
	for _, c := range t.Columns {
		m := typeMap[c.SemanticType]
		p := map[string]any{"type": m[0]}
		if m[1] != "" {
			p["format"] = m[1]
		}
		if c.IsNullable {
			p["nullable"] = true
		} else if c.Default == nil && !c.IsAutoIncrement {
			required = append(required, c.Name)
		}
		if c.MaxLength > 0 && m[0] == "string" {
			p["maxLength"] = c.MaxLength
		}
		// Literal defaults surface as-is; current-timestamp sentinels are
		// server-assigned expressions, not values a client may send back.
		if value, isExpr, ok := ent.DefaultExpr(c.Name); ok {
			if isExpr {
				p["x-default-expression"] = value
			} else {
				p["default"] = value
			}
		}
		props[c.Name] = p
	}

	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func addPaths(paths map[string]any, t schema.TableInfo) {
	ref := map[string]any{"$ref": "#/components/schemas/" + t.Name}
	okResp := map[string]any{
		"200": map[string]any{
			"description": "Success envelope.",
			"content": map[string]any{
				"application/json": map[string]any{"schema": ref},
			},
		},
	}

	collection := map[string]any{
		"get": map[string]any{
			"summary": "List " + t.Name,
			"parameters": []any{
				queryParam("page", "integer"),
				queryParam("limit", "integer"),
				queryParam("scope", "string"),
				queryParam("sort", "string"),
			},
			"responses": okResp,
		},
		"post": map[string]any{
			"summary":   "Create a " + t.Name + " row",
			"responses": okResp,
		},
	}
	paths["/"+t.Name] = collection

	// Point paths only exist for tables the engine can address by key.
	if len(t.PrimaryKey) != 1 && t.Column("id") == nil {
		return
	}
	paths["/"+t.Name+"/{id}"] = map[string]any{
		"parameters": []any{map[string]any{
			"name": "id", "in": "path", "required": true,
			"schema": map[string]any{"type": "string"},
		}},
		"get":    map[string]any{"summary": "Fetch one row", "responses": okResp},
		"put":    map[string]any{"summary": "Replace one row", "responses": okResp},
		"patch":  map[string]any{"summary": "Update one row", "responses": okResp},
		"delete": map[string]any{"summary": "Delete one row", "responses": okResp},
	}
}

func queryParam(name, typ string) map[string]any {
	return map[string]any{
		"name": name, "in": "query",
		"schema": map[string]any{"type": typ},
	}
}
