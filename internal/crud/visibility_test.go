// internal/crud/visibility_test.go
//
// Unit-tests for the allow/deny table policy.

package crud

import "testing"

func TestVisibility(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		denied  []string
		strict  bool
		table   string
		want    bool
	}{
		{"open by default", nil, nil, false, "anything", true},
		{"deny wins over absence", nil, []string{"users"}, false, "users", false},
		{"deny wins over allow", []string{"users"}, []string{"users"}, false, "users", false},
		{"allow-list membership required", []string{"orders"}, nil, false, "orders", true},
		{"allow-list excludes others", []string{"orders"}, nil, false, "users", false},
		{"strict empty allow denies all", nil, nil, true, "orders", false},
		{"strict with allow still admits", []string{"orders"}, nil, true, "orders", true},
	}
	for _, c := range cases {
		v := NewVisibility(c.allowed, c.denied, c.strict)
		if got := v.Visible(c.table); got != c.want {
			t.Errorf("%s: Visible(%q) = %v, want %v", c.name, c.table, got, c.want)
		}
	}
}
