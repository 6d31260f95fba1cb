package middleware

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/contextkeys"
	"github.com/pragati-platform/identity/pkg/httputil"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/policy"
	"github.com/pragati-platform/identity/pkg/session"
)

// Authenticator runs the full request pipeline: extract bearer token,
// verify signature and lifetime, check session revocation, resolve the
// stored user record, then authorize against the rule table.
//
// Responses stay coarse (401/403/503); the precise failure reason goes
// to logs and metrics only, so callers cannot probe which accounts or
// tokens exist.
type Authenticator struct {
	codec    *auth.TokenCodec
	sessions *session.Manager
	resolver *auth.Resolver
	table    *policy.Table
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator creates the middleware. metrics may be nil.
func NewAuthenticator(codec *auth.TokenCodec, sessions *session.Manager, resolver *auth.Resolver, table *policy.Table, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		codec:    codec,
		sessions: sessions,
		resolver: resolver,
		table:    table,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler wraps an HTTP handler with authentication and authorization.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := rulePath(r)

		if a.table.IsPublic(path, r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		token := httputil.BearerToken(r)
		if token == "" {
			a.deny(w, r, http.StatusUnauthorized, "missing_token", nil)
			return
		}

		claims, err := a.codec.Verify(token, auth.TokenAccess)
		if err != nil {
			status, reason := classify(err)
			a.deny(w, r, status, reason, err)
			return
		}

		revoked, err := a.sessions.Revoked(r.Context(), claims)
		if err != nil {
			a.deny(w, r, http.StatusServiceUnavailable, "session_store_unavailable", err)
			return
		}
		if revoked {
			a.deny(w, r, http.StatusUnauthorized, "session_revoked", auth.ErrSessionRevoked)
			return
		}

		id, err := a.resolver.Resolve(r.Context(), claims)
		if err != nil {
			status, reason := classify(err)
			a.deny(w, r, status, reason, err)
			return
		}

		decision := a.table.Authorize(id, path, r.Method)
		if !decision.Allowed {
			a.logger.WithFields(map[string]interface{}{
				"user_id": id.Subject,
				"role":    string(id.Role),
				"path":    path,
				"method":  r.Method,
				"reason":  string(decision.Reason),
			}).Warn("request denied")
			a.record("denied", string(decision.Reason))
			httputil.WriteForbidden(w, "access denied")
			return
		}

		a.record("allowed", "")
		ctx := contextkeys.WithIdentity(r.Context(), id)
		ctx = contextkeys.WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalHandler authenticates when a token is present but lets
// anonymous requests through. Invalid tokens are still rejected; a
// caller presenting credentials must present working ones.
func (a *Authenticator) OptionalHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httputil.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.codec.Verify(token, auth.TokenAccess)
		if err != nil {
			status, reason := classify(err)
			a.deny(w, r, status, reason, err)
			return
		}

		revoked, err := a.sessions.Revoked(r.Context(), claims)
		if err != nil {
			a.deny(w, r, http.StatusServiceUnavailable, "session_store_unavailable", err)
			return
		}
		if revoked {
			a.deny(w, r, http.StatusUnauthorized, "session_revoked", auth.ErrSessionRevoked)
			return
		}

		id, err := a.resolver.Resolve(r.Context(), claims)
		if err != nil {
			status, reason := classify(err)
			a.deny(w, r, status, reason, err)
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), id)
		ctx = contextkeys.WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCollege enforces that the caller's college matches the given
// mux path parameter. Unscoped roles (admin, user, service) pass.
func RequireCollege(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := contextkeys.IdentityFrom(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			target := mux.Vars(r)[param]
			if d := policy.AuthorizeScope(id, target); !d.Allowed {
				httputil.WriteForbidden(w, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identity extracts the resolved identity from the request, or nil.
func Identity(r *http.Request) *auth.Identity {
	id, _ := contextkeys.IdentityFrom(r.Context())
	return id
}

func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request, status int, reason string, cause error) {
	entry := a.logger.WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": status,
		"reason": reason,
	})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn("authentication rejected")
	a.record("denied", reason)

	switch status {
	case http.StatusServiceUnavailable:
		httputil.WriteServiceUnavailable(w, "service temporarily unavailable")
	case http.StatusForbidden:
		httputil.WriteForbidden(w, "access denied")
	default:
		httputil.WriteUnauthorized(w, "authentication required")
	}
}

func (a *Authenticator) record(result, reason string) {
	if a.metrics != nil {
		a.metrics.RecordDecision(result, reason)
	}
}

// classify maps internal error taxonomy onto a coarse status plus a
// detailed metric label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrTokenBadSignature):
		return http.StatusUnauthorized, "bad_signature"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "expired_token"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized, "not_yet_valid"
	case errors.Is(err, auth.ErrTokenMalformed):
		return http.StatusUnauthorized, "malformed_token"
	case errors.Is(err, auth.ErrSessionRevoked), errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_revoked"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusUnauthorized, "unknown_user"
	case errors.Is(err, auth.ErrRoleMismatch):
		return http.StatusUnauthorized, "role_mismatch"
	case errors.Is(err, auth.ErrUserDisabled):
		return http.StatusForbidden, "user_disabled"
	case errors.Is(err, auth.ErrResolverTransient):
		return http.StatusServiceUnavailable, "user_store_unavailable"
	default:
		return http.StatusUnauthorized, "unknown"
	}
}

// rulePath prefers the matched mux route template so parameterized
// routes (e.g. /api/teams/{id}) hit their rule regardless of the
// concrete id.
func rulePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil && tmpl != "" {
			return tmpl
		}
	}
	return r.URL.Path
}
