// Package auth implements the identity core of the Pragati platform:
// the role taxonomy, the signed token codec, and the identity resolver
// that maps verified token claims onto the current user record.
//
// The package deliberately knows nothing about HTTP. Request-boundary
// concerns (header extraction, status codes, context injection) live in
// pkg/middleware; session lifecycle lives in pkg/session.
//
// Error values exported here form the internal failure taxonomy. They
// are never returned verbatim to API callers - the middleware collapses
// them into coarse 401/403/503 categories so that responses cannot be
// used as an enumeration oracle.
package auth
