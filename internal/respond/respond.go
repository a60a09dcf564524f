// internal/respond/respond.go
//
// JSON response envelope.
//
// Success:  { "ok": true,  "data": …, "meta": … }
// Failure:  { "ok": false, "error": "…", "details": … }
//
// Handlers never call json.NewEncoder directly; these helpers keep the
// envelope uniform and route every error through the taxonomy.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Meta carries pagination info on list responses.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

type envelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a success envelope with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{OK: true, Data: data})
}

// List writes a success envelope with pagination meta.
func List(w http.ResponseWriter, data any, meta Meta) {
	write(w, http.StatusOK, envelope{OK: true, Data: data, Meta: &meta})
}

// Err writes a failure envelope derived from err's Kind.  Internal causes are
// logged here and never serialized.
func Err(w http.ResponseWriter, err error) {
	ae := AsError(err)
	if ae.Kind == KindInternal {
		zap.S().Errorw("internal error", "err", ae.Unwrap())
	}
	write(w, ae.Status(), envelope{OK: false, Error: ae.Message, Details: ae.Details})
}

func write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.S().Warnw("response encode failed", "err", err)
	}
}
