// internal/ratelimit/middleware.go
//
// Chi middleware applying the limiter keyed by client address.
package ratelimit

import (
	"net/http"

	"github.com/yanizio/tabula/internal/requestinfo"
	"github.com/yanizio/tabula/internal/respond"
)

// Middleware rejects over-limit requests with a 429 envelope.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if info := requestinfo.FromContext(r.Context()); info != nil {
				key = info.IP
			}
			if !l.Allow(r.Context(), key) {
				respond.Err(w, respond.New(respond.KindRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
