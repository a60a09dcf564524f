// internal/respond/errors.go
//
// Application error taxonomy.
//
// Context
// -------
// Every layer below the HTTP handlers returns a plain `error`.  Errors that
// should map to a specific status code are created (or wrapped) as an *Error
// with one of the Kind constants below; everything else falls through to
// KindInternal.  `FromSQL` translates MySQL driver errors centrally so raw
// constraint messages never leak to clients.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package respond

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
)

// Kind classifies an application error for HTTP mapping.
type Kind int

const (
	KindValidation  Kind = iota // 400 – malformed input, missing PK support
	KindAuth                    // 401 – missing or invalid credentials
	KindForbidden               // 403 – RBAC deny
	KindNotFound                // 404 – unknown/disallowed table, missing row
	KindReadOnly                // 405 – global read-only mode
	KindConflict                // 409 – unique or foreign-key violation
	KindRateLimited             // 429 – limiter rejection
	KindInternal                // 500 – everything else
)

// Error carries a Kind, a client-safe message, and optional details.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status maps the Kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindReadOnly:
		return http.StatusMethodNotAllowed
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error.  The cause is logged, never sent to
// the client.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// AsError extracts an *Error from err, or wraps it as KindInternal.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// MySQL error numbers we translate.  Anything else stays internal.
const (
	mysqlErrDupEntry      = 1062
	mysqlErrRowIsRef      = 1451
	mysqlErrNoRefRow      = 1452
	mysqlErrDataTooLong   = 1406
	mysqlErrBadNull       = 1048
	mysqlErrUnknownColumn = 1054
)

// FromSQL converts storage-layer errors into the taxonomy.  Constraint
// violations become 409, bad column/null/length errors become 400, and the
// rest pass through unchanged (the caller decides 404 vs 500).
func FromSQL(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlErrDupEntry:
		return Wrap(KindConflict, err, "duplicate value violates a unique constraint")
	case mysqlErrRowIsRef, mysqlErrNoRefRow:
		return Wrap(KindConflict, err, "operation violates a foreign-key constraint")
	case mysqlErrDataTooLong:
		return Wrap(KindValidation, err, "value too long for column")
	case mysqlErrBadNull:
		return Wrap(KindValidation, err, "null value in non-nullable column")
	case mysqlErrUnknownColumn:
		return Wrap(KindValidation, err, "unknown column in request")
	default:
		return err
	}
}
