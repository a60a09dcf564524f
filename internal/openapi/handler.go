// internal/openapi/handler.go
//
// Serves the generated contract as YAML or JSON.
package openapi

import (
	"net/http"

	"github.com/yanizio/tabula/internal/respond"
	"github.com/yanizio/tabula/internal/schema"
)

// SnapshotFn supplies the current snapshot; the handler stays decoupled
// from the bootstrap type.
type SnapshotFn func(r *http.Request) (*schema.Snapshot, error)

// YAMLHandler serves /openapi.yaml.
func YAMLHandler(g *Generator, snap SnapshotFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := snap(r)
		if err != nil {
			respond.Err(w, err)
			return
		}
		out, err := g.YAML(s)
		if err != nil {
			respond.Err(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(out)
	}
}

// JSONHandler serves /openapi.json.
func JSONHandler(g *Generator, snap SnapshotFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := snap(r)
		if err != nil {
			respond.Err(w, err)
			return
		}
		out, err := g.JSON(s)
		if err != nil {
			respond.Err(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	}
}
