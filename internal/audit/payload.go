// internal/audit/payload.go
//
// Per-request audit payload container.
//
// Context
// -------
// Handlers and middleware never write audit rows directly.  They attach an
// optional Payload to the request's container as opaque side-channel
// state; the completion middleware (middleware.go) collects it after the
// response is sent and hands it to the Recorder.  RBAC denials use the
// same container so every 401/403 is auditable without re-deriving
// context later.
package audit

import (
	"context"
	"sync"
)

// Denial reasons recorded by the RBAC layer.
const (
	ReasonMissingAuth       = "missing_auth"
	ReasonMissingPermission = "missing_permission"
)

// Payload is the mutable per-request audit state.
type Payload struct {
	ActorID   *int64 // explicit actor; nil → resolve from the principal
	Action    string // create, update, patch, delete, or deny
	Table     string
	RecordKey string
	Before    any
	After     any

	// Denial fields, set only by the RBAC middleware.
	DenialReason string
	Evaluated    []string // exact permission strings evaluated
}

type container struct {
	mu sync.Mutex
	p  *Payload
}

type ctxKey struct{}

// WithContainer seeds an empty container; installed once per request by
// the completion middleware.
func WithContainer(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, &container{})
}

// Set attaches (or replaces) the request's payload.  A no-op when the
// completion middleware is not mounted, so library code may call it
// unconditionally.
func Set(ctx context.Context, p *Payload) {
	c, _ := ctx.Value(ctxKey{}).(*container)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.p = p
	c.mu.Unlock()
}

// SetDenial records an authorization denial payload.
func SetDenial(ctx context.Context, reason string, evaluated []string) {
	Set(ctx, &Payload{Action: "deny", DenialReason: reason, Evaluated: evaluated})
}

// take returns and clears the payload, if any.
func take(ctx context.Context) *Payload {
	c, _ := ctx.Value(ctxKey{}).(*container)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.p
	c.p = nil
	return p
}
