package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// UserStore is the only contract the identity core needs from the
// persistence layer: a read-only lookup by id.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

// CredentialStore extends UserStore with the email lookup the login
// flow needs. The returned record carries the password hash.
type CredentialStore interface {
	UserStore
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Resolver maps verified token claims onto a concrete Identity by
// consulting the user store. The stored record is authoritative: a
// token whose embedded role no longer matches the stored role is
// rejected, so role demotions take effect without waiting for expiry.
type Resolver struct {
	store UserStore
	cache *expirable.LRU[string, *User]
}

// NewResolver builds a resolver. cacheTTL <= 0 disables the fast-path
// cache entirely; with a cache, staleness is bounded by the TTL (a role
// change may take up to cacheTTL to be observed).
func NewResolver(store UserStore, cacheSize int, cacheTTL time.Duration) *Resolver {
	r := &Resolver{store: store}
	if cacheTTL > 0 && cacheSize > 0 {
		r.cache = expirable.NewLRU[string, *User](cacheSize, nil, cacheTTL)
	}
	return r
}

// Resolve loads the current user record for the token subject and
// cross-checks it against the claims. Read-only: the user record is
// never mutated here.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*Identity, error) {
	user, err := r.lookup(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	// Admin accounts skip the disabled check so a misfired bulk
	// deactivation cannot lock the operator out of the platform.
	if user.Disabled && user.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: user %s", ErrUserDisabled, user.ID)
	}
	if string(user.Role) != claims.Role {
		return nil, fmt.Errorf("%w: token says %q, store says %q", ErrRoleMismatch, claims.Role, user.Role)
	}

	id := claims.Identity()
	// The stored record wins for role and scope.
	id.Role = user.Role
	id.CollegeID = user.CollegeID
	return &id, nil
}

// Invalidate drops the cached record for a user. Called after role or
// status changes when the mutation path runs in the same process.
func (r *Resolver) Invalidate(userID string) {
	if r.cache != nil {
		r.cache.Remove(userID)
	}
}

func (r *Resolver) lookup(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrUserNotFound)
	}
	if r.cache != nil {
		if user, ok := r.cache.Get(id); ok {
			return user, nil
		}
	}

	user, err := r.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		// Deadline, cancellation, connection errors: all transient.
		// A timed-out lookup must read as retryable, never as allow
		// and never as a genuine denial.
		return nil, fmt.Errorf("%w: %v", ErrResolverTransient, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}

	if r.cache != nil {
		r.cache.Add(id, user)
	}
	return user, nil
}
