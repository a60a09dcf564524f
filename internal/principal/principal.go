// internal/principal/principal.go
//
// Request-scoped principal.
//
// The authentication middleware stores a *Principal in the request
// context; downstream packages (RBAC middleware, audit recorder, CRUD
// handlers) only ever read it through FromContext.  This lives in its
// own leaf package so that audit can resolve the actor without
// importing auth (which itself attaches audit payloads).
package principal

import "context"

// Principal types.  Only accountable types may be resolved as the audit
// actor when a payload does not name one explicitly.
const (
	TypeUser    = "user"
	TypeService = "service"
)

// Principal is the authenticated caller.
type Principal struct {
	ID          int64
	Email       string
	Type        string
	Permissions []string
}

// Accountable reports whether this principal may be recorded as an audit
// actor by default.
func (p *Principal) Accountable() bool { return p != nil && p.Type == TypeUser }

// principalKey is unexported to avoid context-key collisions.
type principalKey struct{}

// WithPrincipal returns a new context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the principal, or nil when unauthenticated.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
