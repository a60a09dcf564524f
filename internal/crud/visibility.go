// internal/crud/visibility.go
//
// Table visibility policy.
//
// An explicit deny always wins.  When an allow-list is configured,
// membership is required.  Strict mode treats an *empty* allow-list as
// "deny everything" instead of "allow everything", for deployments that
// want opt-in table exposure.
package crud

// Visibility evaluates the allow/deny lists per call.
type Visibility struct {
	allow  map[string]struct{}
	deny   map[string]struct{}
	strict bool
}

// NewVisibility builds the policy from configured lists.
func NewVisibility(allowed, denied []string, strict bool) Visibility {
	v := Visibility{strict: strict}
	if len(allowed) > 0 {
		v.allow = make(map[string]struct{}, len(allowed))
		for _, t := range allowed {
			v.allow[t] = struct{}{}
		}
	}
	if len(denied) > 0 {
		v.deny = make(map[string]struct{}, len(denied))
		for _, t := range denied {
			v.deny[t] = struct{}{}
		}
	}
	return v
}

// Visible reports whether the table may be served at all.
func (v Visibility) Visible(table string) bool {
	if _, denied := v.deny[table]; denied {
		return false
	}
	if v.allow != nil {
		_, ok := v.allow[table]
		return ok
	}
	return !v.strict
}
