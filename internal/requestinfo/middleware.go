//
//  internal/requestinfo/middleware.go
//
//  Enrich assigns (or propagates) a request id, captures client metadata,
//  and stores an *Info in the request context.  The id is echoed back in
//  the X-Request-ID response header so clients and the audit log can be
//  correlated.
//

package requestinfo

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID is both the inbound override and the response header.
const HeaderRequestID = "X-Request-ID"

// Enrich is chi-style middleware.  Mount it before authentication so every
// later layer, including denial auditing, sees the same request id.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ip := clientIP(r)
		info := &Info{
			RequestID: id,
			IP:        ip,
			Country:   lookupCountry(ip),
			UA:        parseUA(r.Header.Get("User-Agent")),
			Route:     r.Method + " " + r.URL.Path,
			Timestamp: time.Now().UTC(),
		}

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(withInfo(r.Context(), info)))
	})
}
