// internal/middleware/https.go
//
// HTTPS enforcement.
//
// When force_https is enabled, every plain-HTTP request that did not
// arrive over TLS (directly or via an X-Forwarded-Proto: https proxy
// hop) is 308-redirected to its HTTPS equivalent.  Localhost is exempt
// so local development and health probes keep working.
package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ForceHTTPS returns a pass-through handler when enabled is false.
func ForceHTTPS(enabled bool, next http.Handler) http.Handler {
	if !enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") || isLocal(r.Host) {
			next.ServeHTTP(w, r)
			return
		}
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

func isLocal(host string) bool {
	h := host
	if sp, _, err := net.SplitHostPort(host); err == nil {
		h = sp
	}
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}
