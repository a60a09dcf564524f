// internal/rbac/match.go
//
// Wildcard capability matching.
//
// Context
// -------
// Permissions are colon-separated capability strings, e.g.
// `crud:eventos:read` or `webhooks:manage`, where any segment may be the
// wildcard `*`.  Every authorization entry point in the service funnels
// through the one matcher below; no call site re-implements the
// comparison inline.
//
// Matching rules
// --------------
//  1. Tokenize held and required patterns on `:`.
//  2. A held permission grants a required one if, position by position,
//     each held segment equals the required segment or is `*`.
//  3. A held pattern *shorter* than the required one still matches when
//     all its segments match the corresponding prefix (partial-wildcard
//     grants): holding `crud:eventos` grants `crud:eventos:read`.
//  4. A held pattern longer than the required one never matches.
//  5. The bare token `*` grants everything.
//
// CRUD shorthand additionally expands `crud:<table>:<action>` against the
// four canonical forms so role tables may store the terser spellings.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package rbac

import "strings"

// Wildcard is the any-segment token.
const Wildcard = "*"

// CRUD action names used by the engine and the permission grammar.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Match reports whether one held permission grants the required one.
func Match(held, required string) bool {
	if held == Wildcard {
		return true
	}
	h := strings.Split(held, ":")
	r := strings.Split(required, ":")
	if len(h) > len(r) {
		return false
	}
	for i, seg := range h {
		if seg != Wildcard && seg != r[i] {
			return false
		}
	}
	return true
}

// Authorize reports whether any permission in the held set grants required.
func Authorize(held []string, required string) bool {
	for _, p := range held {
		if Match(p, required) {
			return true
		}
	}
	return false
}

// CRUDPermission builds the canonical permission string for a table/action.
func CRUDPermission(table, action string) string {
	return "crud:" + table + ":" + action
}

// AuthorizeCRUD checks `crud:<table>:<action>` and its four canonical
// expansions (`table:action`, `table:*`, `*:action`, `*:*` under the crud
// namespace) against the held set.
func AuthorizeCRUD(held []string, table, action string) bool {
	candidates := []string{
		CRUDPermission(table, action),
		CRUDPermission(table, Wildcard),
		CRUDPermission(Wildcard, action),
		CRUDPermission(Wildcard, Wildcard),
	}
	for _, req := range candidates {
		if Authorize(held, req) {
			return true
		}
	}
	return false
}
