// internal/auth/context.go
//
// Request-scoped principal.
//
// The authentication middleware stores a *Principal in the request
// context; downstream packages (RBAC middleware, audit recorder, CRUD
// handlers) only ever read it through FromContext.  The definitions
// live in internal/principal — a leaf package audit can import without
// a cycle — and are re-exported here so callers keep using auth.*.
package auth

import (
	"context"

	"github.com/yanizio/tabula/internal/principal"
)

// Principal types.  Only accountable types may be resolved as the audit
// actor when a payload does not name one explicitly.
const (
	TypeUser    = principal.TypeUser
	TypeService = principal.TypeService
)

// Principal is the authenticated caller.
type Principal = principal.Principal

// WithPrincipal returns a new context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return principal.WithPrincipal(ctx, p)
}

// FromContext extracts the principal, or nil when unauthenticated.
func FromContext(ctx context.Context) *Principal {
	return principal.FromContext(ctx)
}
