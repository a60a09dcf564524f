// internal/rbac/middleware.go
//
// Chi middleware helpers that enforce capability-based access control.
//
// Context
// -------
// Five shapes cover every entry point: per-table CRUD checks (action
// derived from the HTTP method), meta reads, exact permission, any-of,
// and all-of.  On denial the middleware does not merely 401/403 — it
// attaches a structured audit payload (reason, the exact permission
// strings evaluated) to the in-flight request and bumps the denial
// counter, so every refusal is independently auditable and observable
// without re-deriving context later.
package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/tabula/internal/audit"
	"github.com/yanizio/tabula/internal/auth"
	"github.com/yanizio/tabula/internal/metrics"
	"github.com/yanizio/tabula/internal/respond"
)

// PermissionMetaRead guards schema-level reads (table list, OpenAPI doc).
const PermissionMetaRead = "meta:read"

// methodAction maps HTTP verbs onto CRUD actions.
var methodAction = map[string]string{
	http.MethodGet:    ActionRead,
	http.MethodPost:   ActionCreate,
	http.MethodPut:    ActionUpdate,
	http.MethodPatch:  ActionUpdate,
	http.MethodDelete: ActionDelete,
}

// RequireCRUD authorizes the CRUD action implied by the request method
// against the `{table}` URL parameter.
func RequireCRUD(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.FromContext(r.Context())
		if p == nil {
			deny(w, r, audit.ReasonMissingAuth, nil)
			return
		}
		table := chi.URLParam(r, "table")
		action := methodAction[r.Method]
		if !AuthorizeCRUD(p.Permissions, table, action) {
			deny(w, r, audit.ReasonMissingPermission,
				[]string{CRUDPermission(table, action)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMetaRead authorizes schema metadata reads.
func RequireMetaRead(next http.Handler) http.Handler {
	return RequirePermission(PermissionMetaRead)(next)
}

// RequirePermission authorizes one exact permission string.
func RequirePermission(required string) func(http.Handler) http.Handler {
	return requireFn(func(held []string) (bool, []string) {
		return Authorize(held, required), []string{required}
	})
}

// RequireAny authorizes when the principal holds any of the listed
// permissions.  Panics at wire-up time on an empty list.
func RequireAny(required ...string) func(http.Handler) http.Handler {
	if len(required) == 0 {
		panic("rbac.RequireAny: at least one permission must be supplied")
	}
	return requireFn(func(held []string) (bool, []string) {
		for _, req := range required {
			if Authorize(held, req) {
				return true, required
			}
		}
		return false, required
	})
}

// RequireAll authorizes only when every listed permission is granted.
func RequireAll(required ...string) func(http.Handler) http.Handler {
	if len(required) == 0 {
		panic("rbac.RequireAll: at least one permission must be supplied")
	}
	return requireFn(func(held []string) (bool, []string) {
		for _, req := range required {
			if !Authorize(held, req) {
				return false, required
			}
		}
		return true, required
	})
}

func requireFn(check func(held []string) (bool, []string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			if p == nil {
				deny(w, r, audit.ReasonMissingAuth, nil)
				return
			}
			ok, evaluated := check(p.Permissions)
			if !ok {
				deny(w, r, audit.ReasonMissingPermission, evaluated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, reason string, evaluated []string) {
	metrics.RBACDenialsTotal.WithLabelValues(reason).Inc()
	audit.SetDenial(r.Context(), reason, evaluated)
	if reason == audit.ReasonMissingAuth {
		respond.Err(w, respond.New(respond.KindAuth, "authentication required"))
		return
	}
	respond.Err(w, respond.New(respond.KindForbidden, "permission denied"))
}
