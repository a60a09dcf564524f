// internal/auth/store.go
//
// Credential and permission queries.
//
// The RBAC model lives in four tables:
//
//	users            (id PK, email, password_hash, type, deleted_at)
//	roles            (id PK, name)
//	user_roles       (user_id, role_id)
//	role_permissions (role_id, permission)
//
// Permissions are wildcard capability strings (see internal/rbac); they
// are loaded once per login or refresh and embedded in the access token,
// never persisted beyond that.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNoUser is returned for unknown or soft-deleted accounts.
var ErrNoUser = errors.New("auth: user not found")

// User is one users row.
type User struct {
	ID           int64      `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Type         string     `db:"type"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

// Store runs the auth queries.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// UserByEmail fetches an active account by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, email, password_hash, type, deleted_at
	             FROM users
	            WHERE email = ? AND deleted_at IS NULL`
	var u User
	err := s.db.GetContext(ctx, &u, q, email)
	if err == sql.ErrNoRows {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByID fetches an active account by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, email, password_hash, type, deleted_at
	             FROM users
	            WHERE id = ? AND deleted_at IS NULL`
	var u User
	err := s.db.GetContext(ctx, &u, q, id)
	if err == sql.ErrNoRows {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Permissions returns the distinct capability strings granted to the user
// through role membership.
func (s *Store) Permissions(ctx context.Context, userID int64) ([]string, error) {
	const q = `SELECT DISTINCT rp.permission
	             FROM user_roles ur
	             JOIN role_permissions rp ON rp.role_id = ur.role_id
	            WHERE ur.user_id = ?
	            ORDER BY rp.permission`
	perms := make([]string, 0, 8)
	if err := s.db.SelectContext(ctx, &perms, q, userID); err != nil {
		return nil, err
	}
	return perms, nil
}
