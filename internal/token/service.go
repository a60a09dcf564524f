// internal/token/service.go
//
// Refresh-token rotation and reuse detection.
//
// State machine per token:
//
//	issued → validated-and-rotated → revoked (+ successor issued)
//	issued → revoked (logout)
//	issued → expired
//	issued → reuse-detected
//
// A presented token that is already revoked *and* carries a non-null
// replaced_by is classified as reuse — the signal that a stolen,
// already-rotated token is being replayed.  Reuse is logged loudly and
// reported distinctly; it does not cascade-revoke the user's other
// sessions (see DESIGN.md for that decision).
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status classifies a presented refresh token.
type Status int

const (
	StatusValid Status = iota
	StatusUnknown
	StatusExpired
	StatusRevoked
	StatusReuse
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusRevoked:
		return "revoked"
	case StatusReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// Service drives the lifecycle against a Store.
type Service struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService wires the lifecycle.  now is injectable for tests; nil means
// time.Now.
func NewService(store *Store, ttl time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ttl: ttl, now: now}
}

// Hash is the one hashing function for refresh tokens; validation always
// re-hashes the presented plaintext before lookup.
func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Issue mints the first token in a chain (replaced_by stays null until a
// rotation supersedes it).  Returns the plaintext exactly once.
func (s *Service) Issue(ctx context.Context, userID int64) (string, *Record, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	plain := hex.EncodeToString(buf)

	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: Hash(plain),
		ExpiresAt: s.now().Add(s.ttl),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", nil, err
	}
	return plain, rec, nil
}

// Validate re-hashes the presented token, looks it up, and classifies it.
// The record is returned for every known status so callers can log and
// audit the owning user.
func (s *Service) Validate(ctx context.Context, plain string) (*Record, Status, error) {
	rec, err := s.store.FindByHash(ctx, Hash(plain))
	if err == ErrNotFound {
		return nil, StatusUnknown, nil
	}
	if err != nil {
		return nil, StatusUnknown, err
	}

	switch {
	case rec.Revoked() && rec.ReplacedBy != nil:
		zap.S().Warnw("refresh token reuse detected",
			"token_id", rec.ID, "user_id", rec.UserID, "replaced_by", *rec.ReplacedBy)
		return rec, StatusReuse, nil
	case rec.Revoked():
		return rec, StatusRevoked, nil
	case s.now().After(rec.ExpiresAt):
		return rec, StatusExpired, nil
	default:
		return rec, StatusValid, nil
	}
}

// Rotate revokes old and issues its successor, linking the chain through
// replaced_by.  Called on every successful /refresh.
func (s *Service) Rotate(ctx context.Context, old *Record) (string, *Record, error) {
	plain, next, err := s.Issue(ctx, old.UserID)
	if err != nil {
		return "", nil, err
	}
	if err := s.store.Revoke(ctx, old.ID, &next.ID, s.now().UTC()); err != nil {
		return "", nil, err
	}
	return plain, next, nil
}

// RevokeAll is the logout path: every outstanding token for the user dies.
func (s *Service) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	return s.store.RevokeAllForUser(ctx, userID, s.now().UTC())
}
