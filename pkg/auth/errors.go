package auth

import "errors"

// Token verification failures (codec layer).
var (
	// ErrTokenMalformed covers anything that does not parse as a
	// signed token of the expected kind.
	ErrTokenMalformed = errors.New("auth: malformed token")
	// ErrTokenBadSignature means the payload parsed but the MAC does
	// not match the signing secret.
	ErrTokenBadSignature = errors.New("auth: bad token signature")
	// ErrTokenExpired means now >= expiry (past the configured leeway).
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenNotYetValid means the issued-at/not-before check failed.
	ErrTokenNotYetValid = errors.New("auth: token not yet valid")
)

// Identity resolution failures (resolver layer).
var (
	// ErrUserNotFound means the token subject has no user record.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUserDisabled means the account exists but is deactivated.
	ErrUserDisabled = errors.New("auth: user disabled")
	// ErrRoleMismatch means the token's embedded role no longer
	// matches the stored role - the token is stale after a role change.
	ErrRoleMismatch = errors.New("auth: token role does not match stored role")
	// ErrResolverTransient wraps store timeouts and transport errors.
	// Safe for the caller to retry; must never be treated as a denial.
	ErrResolverTransient = errors.New("auth: transient resolver error")
)

// Session and refresh failures (session layer).
var (
	// ErrInvalidCredentials is the single login failure: unknown
	// email and wrong password are indistinguishable externally.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrSessionNotFound means the session id has no record.
	ErrSessionNotFound = errors.New("auth: session not found")
	// ErrSessionRevoked means the session's revoked flag is set.
	ErrSessionRevoked = errors.New("auth: session revoked")
	// ErrRefreshExpired means the refresh token is past its own expiry.
	ErrRefreshExpired = errors.New("auth: refresh token expired")
	// ErrRefreshReuse signals presentation of an already-rotated
	// refresh token. Treated as a security event: the whole token
	// family is revoked before this error is returned.
	ErrRefreshReuse = errors.New("auth: refresh token reuse detected")
	// ErrSessionConflict means a concurrent rotation won the
	// compare-and-set. The caller lost the race, not the session.
	ErrSessionConflict = errors.New("auth: concurrent session update")
)
