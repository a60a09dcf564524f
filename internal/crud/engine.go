// internal/crud/engine.go
//
// Generic CRUD engine.
//
// Context
// -------
// One parameterized query builder serves every visible table, driven by
// the runtime entities from internal/model.  Nothing here is generated
// per table: identifiers are validated against the entity's column set
// and quoted, values always travel as placeholders.
//
// Soft-deleted rows (`deleted_at` set) are excluded by default; callers
// opt into the `all` or `deleted` scopes explicitly.  LIST and COUNT run
// concurrently and are returned together.  Point operations require a
// resolvable single-column primary key; tables without one are still
// listable but refuse them with a validation error.
//
// The engine never writes audit rows; it returns before/after snapshots
// to the handler layer, which attaches them as side-channel state.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package crud

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/tabula/internal/model"
	"github.com/yanizio/tabula/internal/respond"
)

// Pagination bounds, enforced server-side regardless of client input.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Row scopes for soft-delete tables.
const (
	ScopeActive  = "active"
	ScopeAll     = "all"
	ScopeDeleted = "deleted"
)

// ListQuery carries sanitized listing parameters.
type ListQuery struct {
	Page    int
	Limit   int
	Scope   string
	Sort    string            // column name, "-" prefix for descending
	Filters map[string]string // column → equality value
}

// Row is one record rendered for JSON.
type Row = map[string]any

// Engine serves list/get/create/update/patch/delete for any visible table.
type Engine struct {
	db       *sqlx.DB
	entities map[string]*model.Entity
	vis      Visibility
	readOnly bool
}

// NewEngine wires the engine.  readOnly rejects every write method before
// touching the database.
func NewEngine(db *sqlx.DB, entities map[string]*model.Entity, vis Visibility, readOnly bool) *Engine {
	return &Engine{db: db, entities: entities, vis: vis, readOnly: readOnly}
}

// Tables returns the sorted names of every visible table.
func (e *Engine) Tables() []string {
	out := make([]string, 0, len(e.entities))
	for name := range e.entities {
		if e.vis.Visible(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve maps a table name to its entity, or a 404-class error.  Unknown
// and disallowed tables are indistinguishable to the client on purpose.
func (e *Engine) Resolve(table string) (*model.Entity, error) {
	ent, ok := e.entities[table]
	if !ok || !e.vis.Visible(table) {
		return nil, respond.New(respond.KindNotFound, "unknown table %q", table)
	}
	return ent, nil
}

// guardWrite enforces the global read-only flag.
func (e *Engine) guardWrite() error {
	if e.readOnly {
		return respond.New(respond.KindReadOnly, "service is in read-only mode")
	}
	return nil
}

/*──────────────────────────── read path ───────────────────────────────────*/

// List returns one page of rows plus the total count, issued concurrently.
func (e *Engine) List(ctx context.Context, table string, q ListQuery) ([]Row, int64, error) {
	ent, err := e.Resolve(table)
	if err != nil {
		return nil, 0, err
	}

	q = sanitize(q)
	where, args, err := e.buildWhere(ent, q)
	if err != nil {
		return nil, 0, err
	}

	orderBy, err := buildOrder(ent, q.Sort)
	if err != nil {
		return nil, 0, err
	}

	listSQL := fmt.Sprintf("SELECT * FROM %s%s%s LIMIT ? OFFSET ?",
		quote(ent.Table), where, orderBy)
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(ent.Table), where)

	var (
		rows  []Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listArgs := append(append([]any{}, args...), q.Limit, (q.Page-1)*q.Limit)
		var err error
		rows, err = e.selectRows(gctx, listSQL, listArgs...)
		return err
	})
	g.Go(func() error {
		return e.db.GetContext(gctx, &total, countSQL, args...)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, respond.FromSQL(err)
	}
	return rows, total, nil
}

// Get fetches one row by primary key.
func (e *Engine) Get(ctx context.Context, table, id, scope string) (Row, error) {
	ent, err := e.Resolve(table)
	if err != nil {
		return nil, err
	}
	return e.fetchByKey(ctx, ent, id, scope)
}

/*──────────────────────────── write path ──────────────────────────────────*/

// Create inserts one row and returns the stored copy.
func (e *Engine) Create(ctx context.Context, table string, input map[string]any) (Row, string, error) {
	if err := e.guardWrite(); err != nil {
		return nil, "", err
	}
	ent, err := e.Resolve(table)
	if err != nil {
		return nil, "", err
	}

	cols, vals, unknown := ent.WritableColumns(input)
	if len(unknown) > 0 {
		return nil, "", &respond.Error{
			Kind:    respond.KindValidation,
			Message: "unknown columns in request body",
			Details: unknown,
		}
	}
	if len(cols) == 0 {
		return nil, "", respond.New(respond.KindValidation, "request body contains no writable columns")
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(ent.Table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	res, err := e.db.ExecContext(ctx, insertSQL, vals...)
	if err != nil {
		return nil, "", respond.FromSQL(err)
	}

	key := resolveInsertKey(ent, input, res)
	if key == "" || !ent.HasPointOps() {
		// No way to re-read the row (no usable key); echo the input.
		return input, key, nil
	}
	after, err := e.fetchByKey(ctx, ent, key, ScopeAll)
	if err != nil {
		return input, key, nil
	}
	return after, key, nil
}

// Update applies a full or partial update by primary key and returns the
// before and after snapshots.  PUT and PATCH share this path; both set
// exactly the columns provided, the handler layer names the action.
func (e *Engine) Update(ctx context.Context, table, id string, input map[string]any) (before, after Row, err error) {
	if err := e.guardWrite(); err != nil {
		return nil, nil, err
	}
	ent, err := e.Resolve(table)
	if err != nil {
		return nil, nil, err
	}

	before, err = e.fetchByKey(ctx, ent, id, ScopeAll)
	if err != nil {
		return nil, nil, err
	}

	cols, vals, unknown := ent.WritableColumns(input)
	if len(unknown) > 0 {
		return nil, nil, &respond.Error{
			Kind:    respond.KindValidation,
			Message: "unknown columns in request body",
			Details: unknown,
		}
	}
	if len(cols) == 0 {
		return nil, nil, respond.New(respond.KindValidation, "request body contains no writable columns")
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(ent.Table), strings.Join(sets, ", "), quote(ent.PrimaryKey))

	args := append(vals, id)
	if _, err := e.db.ExecContext(ctx, updateSQL, args...); err != nil {
		return nil, nil, respond.FromSQL(err)
	}

	after, err = e.fetchByKey(ctx, ent, id, ScopeAll)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Delete removes one row by primary key.  Tables with a soft-delete
// column are soft-deleted (deleted_at = CURRENT_TIMESTAMP); the rest are
// physically removed.  The before snapshot is returned for auditing.
func (e *Engine) Delete(ctx context.Context, table, id string) (Row, error) {
	if err := e.guardWrite(); err != nil {
		return nil, err
	}
	ent, err := e.Resolve(table)
	if err != nil {
		return nil, err
	}

	before, err := e.fetchByKey(ctx, ent, id, ScopeActive)
	if err != nil {
		return nil, err
	}

	var delSQL string
	if ent.SoftDelete {
		delSQL = fmt.Sprintf("UPDATE %s SET %s = CURRENT_TIMESTAMP WHERE %s = ?",
			quote(ent.Table), quote(model.SoftDeleteColumn), quote(ent.PrimaryKey))
	} else {
		delSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
			quote(ent.Table), quote(ent.PrimaryKey))
	}
	if _, err := e.db.ExecContext(ctx, delSQL, id); err != nil {
		return nil, respond.FromSQL(err)
	}
	return before, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// fetchByKey loads one row by primary key under the given scope.
func (e *Engine) fetchByKey(ctx context.Context, ent *model.Entity, id, scope string) (Row, error) {
	if !ent.HasPointOps() {
		return nil, respond.New(respond.KindValidation,
			"table %q has no usable primary key for point operations", ent.Table)
	}

	where := fmt.Sprintf(" WHERE %s = ?", quote(ent.PrimaryKey))
	args := []any{id}
	if clause := scopeClause(ent, scope); clause != "" {
		where += " AND " + clause
	}

	rows, err := e.selectRows(ctx, fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", quote(ent.Table), where), args...)
	if err != nil {
		return nil, respond.FromSQL(err)
	}
	if len(rows) == 0 {
		return nil, respond.New(respond.KindNotFound, "row %q not found in %q", id, ent.Table)
	}
	return rows[0], nil
}

// selectRows runs a query and renders rows as JSON-friendly maps.
func (e *Engine) selectRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0, 16)
	for rows.Next() {
		m := Row{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// buildWhere renders the scope filter plus any column-equality filters.
func (e *Engine) buildWhere(ent *model.Entity, q ListQuery) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if c := scopeClause(ent, q.Scope); c != "" {
		clauses = append(clauses, c)
	}

	// Deterministic filter order keeps queries stable for tests and logs.
	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ent.Column(name) == nil {
			return "", nil, respond.New(respond.KindValidation, "unknown filter column %q", name)
		}
		clauses = append(clauses, quote(name)+" = ?")
		args = append(args, q.Filters[name])
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// scopeClause renders the soft-delete filter for the requested scope.
// Tables without a soft-delete column ignore scope entirely.
func scopeClause(ent *model.Entity, scope string) string {
	if !ent.SoftDelete {
		return ""
	}
	switch scope {
	case ScopeAll:
		return ""
	case ScopeDeleted:
		return quote(model.SoftDeleteColumn) + " IS NOT NULL"
	default: // ScopeActive and anything unrecognized
		return quote(model.SoftDeleteColumn) + " IS NULL"
	}
}

func buildOrder(ent *model.Entity, sortParam string) (string, error) {
	if sortParam == "" {
		return "", nil
	}
	col, dir := sortParam, "ASC"
	if strings.HasPrefix(sortParam, "-") {
		col, dir = sortParam[1:], "DESC"
	}
	if ent.Column(col) == nil {
		return "", respond.New(respond.KindValidation, "unknown sort column %q", col)
	}
	return fmt.Sprintf(" ORDER BY %s %s", quote(col), dir), nil
}

// sanitize clamps pagination regardless of client input.
func sanitize(q ListQuery) ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q
}

// resolveInsertKey picks the created row's key: LastInsertId for
// auto-increment keys, else the client-supplied key column value.
func resolveInsertKey(ent *model.Entity, input map[string]any, res sql.Result) string {
	if ent.AutoIncrement != "" && ent.AutoIncrement == ent.PrimaryKey {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			return fmt.Sprintf("%d", id)
		}
	}
	if ent.PrimaryKey != "" {
		if v, ok := input[ent.PrimaryKey]; ok {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func quote(ident string) string { return "`" + ident + "`" }
