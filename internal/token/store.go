// internal/token/store.go
//
// Refresh-token persistence.
//
// Context
// -------
// Only the SHA-256 hash of a refresh token is ever stored; the plaintext
// exists in the HTTP response and the client, nowhere else.  Rows are
// created at login or rotation, mutated exactly once (revocation
// timestamp plus successor id), and never deleted — the chain is retained
// as reuse-detection history.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is one refresh_tokens row.
type Record struct {
	ID         string     `db:"id"`
	UserID     int64      `db:"user_id"`
	TokenHash  string     `db:"token_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	ReplacedBy *string    `db:"replaced_by"`
	CreatedAt  time.Time  `db:"created_at"`
}

// Revoked reports whether the row has been revoked.
func (r *Record) Revoked() bool { return r.RevokedAt != nil }

// ErrNotFound is returned when no row matches a presented hash.
var ErrNotFound = errors.New("token: not found")

// Store runs the parameterised queries for the refresh_tokens table.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Insert creates a new, unrevoked row.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	const q = `INSERT INTO refresh_tokens
	             (id, user_id, token_hash, expires_at, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt)
	return err
}

// FindByHash looks up the row for a presented (re-hashed) token.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Record, error) {
	const q = `SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
	             FROM refresh_tokens
	            WHERE token_hash = ?`
	var rec Record
	err := s.db.GetContext(ctx, &rec, q, hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Revoke stamps revoked_at and the optional successor.  The WHERE clause
// guarantees the one-mutation lifecycle: an already-revoked row is never
// touched again.
func (s *Store) Revoke(ctx context.Context, id string, replacedBy *string, at time.Time) error {
	const q = `UPDATE refresh_tokens
	              SET revoked_at = ?, replaced_by = ?
	            WHERE id = ? AND revoked_at IS NULL`
	_, err := s.db.ExecContext(ctx, q, at, replacedBy, id)
	return err
}

// RevokeAllForUser is the logout full-session kill: every outstanding row
// for the user is revoked, with no successor.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	const q = `UPDATE refresh_tokens
	              SET revoked_at = ?
	            WHERE user_id = ? AND revoked_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, at, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
