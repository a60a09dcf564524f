// internal/crud/handler.go
//
// HTTP surface for the generic CRUD engine.
//
// Routes (mounted under /api by the caller):
//
//	GET    /tables          visible table names
//	GET    /{table}         paginated listing
//	POST   /{table}         create (honors Idempotency-Key)
//	GET    /{table}/{id}    point read
//	PUT    /{table}/{id}    full update
//	PATCH  /{table}/{id}    partial update
//	DELETE /{table}/{id}    delete (soft when the table supports it)
//
// Every route is RBAC-guarded; mutating routes attach before/after
// snapshots to the request's audit payload.  The handler never writes
// audit rows itself.
package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/tabula/internal/audit"
	"github.com/yanizio/tabula/internal/auth"
	"github.com/yanizio/tabula/internal/idempotency"
	"github.com/yanizio/tabula/internal/metrics"
	"github.com/yanizio/tabula/internal/rbac"
	"github.com/yanizio/tabula/internal/respond"
)

// HeaderIdempotencyKey is the client-supplied deduplication token.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay marks responses served from the store.
const HeaderIdempotentReplay = "Idempotent-Replay"

// maxBodyBytes caps CRUD request bodies.
const maxBodyBytes = 1 << 20

// reserved query parameters that are never treated as column filters.
var reservedParams = map[string]struct{}{
	"page": {}, "limit": {}, "scope": {}, "sort": {},
}

// Publisher fans a mutation event out to webhook subscribers.  A nil
// publisher disables event emission.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Handler binds the engine to chi routes.
type Handler struct {
	engine *Engine
	idem   *idempotency.Store
	pub    Publisher
}

// NewHandler wires the HTTP layer.
func NewHandler(engine *Engine, idem *idempotency.Store, pub Publisher) *Handler {
	return &Handler{engine: engine, idem: idem, pub: pub}
}

// publish enqueues a `<table>.<verb>` event.  Enqueue failures are logged
// by the enqueuer; the CRUD response never depends on them.
func (h *Handler) publish(ctx context.Context, table, verb, key string, record Row) {
	if h.pub == nil {
		return
	}
	_ = h.pub.Publish(ctx, table+"."+verb, map[string]any{
		"table":  table,
		"action": verb,
		"key":    key,
		"record": record,
	})
}

// Routes returns the CRUD router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(rbac.RequireMetaRead).Get("/tables", h.tables)
	r.Route("/{table}", func(r chi.Router) {
		r.Use(rbac.RequireCRUD)
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update("update"))
			r.Patch("/", h.update("patch"))
			r.Delete("/", h.delete)
		})
	})
	return r
}

func (h *Handler) tables(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.engine.Tables())
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	metrics.CRUDRequestsTotal.WithLabelValues(table, "list").Inc()

	q := parseListQuery(r)
	rows, total, err := h.engine.List(r.Context(), table, q)
	if err != nil {
		respond.Err(w, err)
		return
	}
	q = sanitize(q)
	respond.List(w, rows, respond.Meta{Page: q.Page, Limit: q.Limit, Total: total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	metrics.CRUDRequestsTotal.WithLabelValues(table, "read").Inc()

	row, err := h.engine.Get(r.Context(), table, chi.URLParam(r, "id"), r.URL.Query().Get("scope"))
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, row)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	metrics.CRUDRequestsTotal.WithLabelValues(table, "create").Inc()

	idemKey := h.replayKey(r)
	if idemKey != "" {
		if stored, ok := h.idem.Get(r.Context(), idemKey); ok {
			metrics.IdempotentReplaysTotal.Inc()
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(stored.Status)
			w.Write(stored.Body)
			return
		}
	}

	input, err := decodeBody(r)
	if err != nil {
		respond.Err(w, err)
		return
	}

	after, key, err := h.engine.Create(r.Context(), table, input)
	if err != nil {
		respond.Err(w, err)
		return
	}

	audit.Set(r.Context(), &audit.Payload{
		Action: "create", Table: table, RecordKey: key, After: after,
	})
	h.publish(r.Context(), table, "created", key, after)

	if idemKey == "" {
		respond.JSON(w, http.StatusCreated, after)
		return
	}
	rec := newRecorder(w)
	respond.JSON(rec, http.StatusCreated, after)
	h.idem.Put(r.Context(), idemKey, idempotency.Stored{Status: rec.status, Body: rec.body.Bytes()})
}

func (h *Handler) update(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "table")
		metrics.CRUDRequestsTotal.WithLabelValues(table, action).Inc()

		input, err := decodeBody(r)
		if err != nil {
			respond.Err(w, err)
			return
		}

		id := chi.URLParam(r, "id")
		before, after, err := h.engine.Update(r.Context(), table, id, input)
		if err != nil {
			respond.Err(w, err)
			return
		}

		audit.Set(r.Context(), &audit.Payload{
			Action: action, Table: table, RecordKey: id, Before: before, After: after,
		})
		h.publish(r.Context(), table, "updated", id, after)
		respond.JSON(w, http.StatusOK, after)
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	metrics.CRUDRequestsTotal.WithLabelValues(table, "delete").Inc()

	id := chi.URLParam(r, "id")
	before, err := h.engine.Delete(r.Context(), table, id)
	if err != nil {
		respond.Err(w, err)
		return
	}

	audit.Set(r.Context(), &audit.Payload{
		Action: "delete", Table: table, RecordKey: id, Before: before,
	})
	h.publish(r.Context(), table, "deleted", id, before)
	respond.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// replayKey fingerprints the Idempotency-Key header, or "" when absent.
func (h *Handler) replayKey(r *http.Request) string {
	header := r.Header.Get(HeaderIdempotencyKey)
	if header == "" || h.idem == nil {
		return ""
	}
	var actorID int64
	if p := auth.FromContext(r.Context()); p != nil {
		actorID = p.ID
	}
	return idempotency.Fingerprint(header, r.Method+" "+r.URL.Path, actorID)
}

func decodeBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, respond.Wrap(respond.KindValidation, err, "unreadable request body")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, respond.Wrap(respond.KindValidation, err, "request body must be a JSON object")
	}
	return m, nil
}

func parseListQuery(r *http.Request) ListQuery {
	vals := r.URL.Query()
	q := ListQuery{
		Page:  atoiDefault(vals.Get("page"), 0),
		Limit: atoiDefault(vals.Get("limit"), 0),
		Scope: vals.Get("scope"),
		Sort:  vals.Get("sort"),
	}
	for name := range vals {
		if _, reserved := reservedParams[name]; reserved {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]string)
		}
		q.Filters[name] = vals.Get(name)
	}
	return q
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
		if n > 1<<30 {
			return 1 << 30
		}
	}
	return n
}

// recorder captures a response so it can be stored for replay.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
