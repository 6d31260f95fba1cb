package auth

import (
	"fmt"
	"time"
)

// Role is a platform actor type. The set is closed: handlers and the
// access policy switch over these constants, so a new role is a code
// change, not a data change.
type Role string

const (
	// RoleAdmin is the platform operator. Implicitly authorized for
	// every route unless a rule explicitly excludes it.
	RoleAdmin Role = "admin"
	// RoleCoordinator runs innovation programs for a single college.
	RoleCoordinator Role = "coordinator"
	// RolePrincipal is the college-level administrator.
	RolePrincipal Role = "principal"
	// RoleMentor guides student teams; may be external to any college.
	RoleMentor Role = "mentor"
	// RoleUser is a student/innovator account.
	RoleUser Role = "user"
	// RoleService identifies system callers (notification fan-out,
	// report generation jobs). Never issued through the login flow.
	RoleService Role = "service"
)

// Roles lists every valid role. Order is stable for deterministic
// iteration in tests and policy dumps.
func Roles() []Role {
	return []Role{RoleAdmin, RoleCoordinator, RolePrincipal, RoleMentor, RoleUser, RoleService}
}

// Valid reports whether r is one of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RolePrincipal, RoleMentor, RoleUser, RoleService:
		return true
	}
	return false
}

// Scoped reports whether the role's privileges are bounded to a single
// college. Admin and service callers are unscoped.
func (r Role) Scoped() bool {
	switch r {
	case RoleCoordinator, RolePrincipal:
		return true
	}
	return false
}

// ParseRole converts a string into a Role, rejecting anything outside
// the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is the per-request caller identity produced by the resolver.
// It is derived from a verified token plus the current user record and
// is never persisted; once attached to a request context it must be
// treated as immutable.
type Identity struct {
	// Subject is the user id (opaque string).
	Subject string
	// Role is the stored role, not the token's embedded one.
	Role Role
	// CollegeID scopes coordinator/principal identities to their
	// institution. Empty for unscoped roles.
	CollegeID string
	// SessionID ties the identity back to its session family so
	// revocation can be enforced mid-lifetime.
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// User is the read model of a user record in the external store. The
// identity core only ever reads these; mutation belongs to the user
// management routes, which are out of this subsystem.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	Role         Role       `json:"role"`
	CollegeID    string     `json:"college_id,omitempty"`
	Disabled     bool       `json:"disabled"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// TokenKind distinguishes access tokens from refresh tokens. Encoded in
// the "typ" claim; a refresh token presented where an access token is
// expected fails verification as malformed.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)
