// internal/auth/routes_test.go
//
// Only login and refresh sit behind the rate-limit middleware; logout and
// me must stay unthrottled so an authenticated user can always end a
// session or inspect it.
//
// Run: go test ./internal/auth -v

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoutes_LimitWrapsOnlyLoginAndRefresh(t *testing.T) {
	intercepted := 0
	limit := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			intercepted++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}

	h := NewHandler(nil, nil, nil, false, 0)
	r := h.Routes(limit)

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := do(http.MethodPost, "/login"); code != http.StatusTooManyRequests {
		t.Fatalf("login = %d, want the limiter to intercept", code)
	}
	if code := do(http.MethodPost, "/refresh"); code != http.StatusTooManyRequests {
		t.Fatalf("refresh = %d, want the limiter to intercept", code)
	}

	// Anonymous logout and me reach the real handlers, which answer 401
	// before touching any backing service.
	if code := do(http.MethodPost, "/logout"); code != http.StatusUnauthorized {
		t.Fatalf("logout = %d, want 401 from the handler, not the limiter", code)
	}
	if code := do(http.MethodGet, "/me"); code != http.StatusUnauthorized {
		t.Fatalf("me = %d, want 401 from the handler, not the limiter", code)
	}
	if intercepted != 2 {
		t.Fatalf("limiter invoked %d times, want 2", intercepted)
	}
}

func TestRoutes_NilLimitDisablesThrottling(t *testing.T) {
	h := NewHandler(nil, nil, nil, false, 0)
	r := h.Routes(nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me with nil limit = %d, want 401", rr.Code)
	}
}
