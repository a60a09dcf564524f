//
//  internal/requestinfo/requestinfo.go
//
//  Lightweight types and helpers that collect per-request metadata
//  (request id, client IP, user-agent fingerprint, and optional
//  geolocation).  These structs are inert.  They contain no pointers to
//  database handles or large buffers, so they are safe to log, JSON-encode,
//  or hand to the audit recorder.
//
//  Dependencies
//  • github.com/google/uuid            (request ids)
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (optional MaxMind lookup)
//

package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// UA holds the parsed user-agent properties the audit log records.
type UA struct {
	Raw     string // entire User-Agent header, pre-truncation
	Browser string // "Chrome", "Firefox", "Safari", …
	OS      string // "macOS", "Windows", "Android", …
	IsBot   bool   // true when the UA matches a crawler signature
}

// Info is attached to every request by the Enrich middleware.
type Info struct {
	RequestID string
	IP        string // client address, X-Forwarded-For aware
	Country   string // ISO code, empty unless GeoIP is configured
	UA        UA
	Route     string
	Timestamp time.Time
}

//
//  -----------------------------
//  Package-level state
//  -----------------------------
//

// geoReader is an optional singleton MaxMind handle.  It is safe for
// concurrent reads, which is all we ever perform.
var geoReader *geoip2.Reader

// InitGeo opens the GeoLite2-City database.  Call it from main() when a
// path is configured; lookups silently no-op otherwise.
func InitGeo(dbPath string) error {
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return err
	}
	geoReader = r
	return nil
}

//
//  -----------------------------
//  Context plumbing
//  -----------------------------
//

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

func withInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// clientIP prefers the left-most X-Forwarded-For hop, falling back to
// RemoteAddr with the port stripped.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i != -1 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(header string) UA {
	if header == "" {
		return UA{}
	}
	u := uasurfer.Parse(header)
	browser := strings.TrimPrefix(u.Browser.Name.String(), "Browser")
	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{Raw: header, Browser: browser, OS: osName, IsBot: u.IsBot()}
}

// lookupCountry is best-effort; failures log at debug and return "".
func lookupCountry(ipStr string) string {
	if geoReader == nil {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	rec, err := geoReader.Country(ip)
	if err != nil {
		zap.S().Debugw("geoip lookup failed", "ip", ipStr, "err", err)
		return ""
	}
	return rec.Country.IsoCode
}
