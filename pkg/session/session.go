// Package session implements login, refresh-token rotation, and
// revocation. A session records one login's token family; refresh
// tokens rotate inside it, and presenting an already-rotated token
// revokes the entire family on the assumption that it was stolen.
package session

import (
	"context"
	"time"
)

// Session is one login's server-side record. Revocation is the
// mutation path: records are never deleted while unexpired, so a
// revoked session keeps denying its tokens until the expiry sweep
// removes it.
type Session struct {
	// ID is the session id embedded in both tokens' sid claim.
	ID string `json:"id"`
	// UserID is the subject that logged in.
	UserID string `json:"user_id"`
	// FamilyID names the refresh-token lineage started at login.
	FamilyID string `json:"family_id"`
	// RefreshID is the jti of the only currently-valid refresh
	// token. Rotation replaces it; an old jti showing up again is
	// reuse.
	RefreshID string `json:"refresh_id"`
	Revoked   bool   `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	RotatedAt time.Time `json:"rotated_at,omitempty"`
}

// Store persists sessions. Rotate must be atomic (compare-and-set on
// the refresh id): with two concurrent refresh calls exactly one may
// succeed. Everything else is plain reads and idempotent writes.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Rotate installs newRefreshID and the new expiry only if the
	// session's current refresh id equals expected. Returns
	// auth.ErrSessionConflict when the compare fails because a
	// concurrent rotation got there first.
	Rotate(ctx context.Context, id, expected, newRefreshID string, expiresAt time.Time) error
	// Revoke marks the session revoked and reports whether this call
	// made the transition. Idempotent; revoking a missing or
	// already-revoked session returns false without error.
	Revoke(ctx context.Context, id string) (bool, error)
	// RevokeFamily revokes every session in a token family.
	RevokeFamily(ctx context.Context, familyID string) error
	// DeleteExpired removes sessions whose expiry passed. Returns
	// the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
