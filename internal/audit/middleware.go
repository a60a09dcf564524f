// internal/audit/middleware.go
//
// Response-completion hook.
//
// Context
// -------
// Completion seeds an empty payload container into the request context,
// lets the chain run, and only after next returns — the response is fully
// written by then — collects whatever payload was attached, resolves the
// actor, and enqueues one record.  Requests that attach no payload cost a
// single context lookup.
//
// Actor resolution order: explicit payload ActorID, else the
// authenticated principal when its type is accountable, else NULL.
package audit

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/yanizio/tabula/internal/principal"
	"github.com/yanizio/tabula/internal/requestinfo"
)

// Completion returns chi-style middleware bound to a Recorder.
func Completion(rec *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithContainer(r.Context())
			r = r.WithContext(ctx)

			next.ServeHTTP(w, r)

			p := take(ctx)
			if p == nil {
				return
			}

			record := Record{
				Action:    p.Action,
				Table:     p.Table,
				RecordKey: p.RecordKey,
				Before:    MarshalState(p.Before),
				After:     MarshalState(p.After),
				CreatedAt: time.Now().UTC(),
			}

			switch {
			case p.ActorID != nil:
				record.ActorID = sql.NullInt64{Int64: *p.ActorID, Valid: true}
			default:
				if pr := principal.FromContext(ctx); pr.Accountable() {
					record.ActorID = sql.NullInt64{Int64: pr.ID, Valid: true}
				}
			}

			if info := requestinfo.FromContext(ctx); info != nil {
				record.Route = info.Route
				record.IP = info.IP
				record.UserAgent = info.UA.Raw
				record.RequestID = info.RequestID
			}

			// Denials store their evaluation detail in the after column so
			// the row shape stays uniform.
			if p.DenialReason != "" {
				record.After = MarshalState(map[string]any{
					"reason":    p.DenialReason,
					"evaluated": p.Evaluated,
				})
			}

			rec.Enqueue(record)
		})
	}
}

// StateJSON is a convenience for handlers that already hold raw JSON.
func StateJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return json.RawMessage(raw)
}
