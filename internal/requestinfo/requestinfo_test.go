// internal/requestinfo/requestinfo_test.go
//
// Unit-tests for request enrichment and client-IP resolution.

package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"remote addr port stripped", "203.0.113.9:4411", "", "203.0.113.9"},
		{"single forwarded hop", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"first hop of chain wins", "10.0.0.1:80", "198.51.100.7, 10.0.0.2, 10.0.0.1", "198.51.100.7"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = c.remote
		if c.xff != "" {
			req.Header.Set("X-Forwarded-For", c.xff)
		}
		if got := clientIP(req); got != c.want {
			t.Errorf("%s: clientIP = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestEnrich(t *testing.T) {
	var got *Info
	h := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got == nil {
		t.Fatal("Info must be attached to the context")
	}
	if got.RequestID == "" {
		t.Fatal("a request id must be generated")
	}
	if rr.Header().Get(HeaderRequestID) != got.RequestID {
		t.Fatal("request id must be echoed in the response header")
	}
	if got.Route != "GET /api/orders" {
		t.Fatalf("route = %q", got.Route)
	}
	if got.UA.Browser != "Chrome" {
		t.Fatalf("browser = %q, want Chrome", got.UA.Browser)
	}
}

func TestEnrich_PropagatesInboundID(t *testing.T) {
	var got *Info
	h := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-id-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.RequestID != "upstream-id-7" {
		t.Fatalf("request id = %q, want the inbound value", got.RequestID)
	}
}
