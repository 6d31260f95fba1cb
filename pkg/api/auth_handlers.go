package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/contextkeys"
	"github.com/pragati-platform/identity/pkg/httputil"
	"github.com/pragati-platform/identity/pkg/middleware"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/session"
)

// LastLoginRecorder is the optional write-back the login flow uses to
// stamp last_login_at. A store that cannot record it may be omitted.
type LastLoginRecorder interface {
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// AuthHandlers implements the authentication endpoints.
type AuthHandlers struct {
	sessions   *session.Manager
	lastLogins LastLoginRecorder
	// loginLimit throttles the login route. Either the in-memory
	// token bucket or the redis-backed window, depending on
	// deployment.
	loginLimit func(http.Handler) http.Handler
	audit      audit.Logger
	logger     *observability.Logger
}

// NewAuthHandlers wires the auth endpoints. lastLogins and loginLimit
// may be nil; auditLog may be a NopLogger.
func NewAuthHandlers(sessions *session.Manager, lastLogins LastLoginRecorder, loginLimit func(http.Handler) http.Handler, auditLog audit.Logger, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions:   sessions,
		lastLogins: lastLogins,
		loginLimit: loginLimit,
		audit:      auditLog,
		logger:     logger,
	}
}

// RegisterRoutes mounts the auth routes. Login and refresh must be
// marked public in the policy rules; logout and validate-token run
// behind the authenticator.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.login)
	if h.loginLimit != nil {
		login = h.loginLimit(login)
	}
	router.Handle("/api/auth/login", login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/refresh", h.refresh).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", h.logout).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/validate-token", h.validateToken).Methods(http.MethodGet)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userSummary is the caller-visible slice of the user record returned
// alongside a fresh token pair.
type userSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	CollegeID string `json:"college_id,omitempty"`
}

type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         userSummary `json:"user"`
}

// login handles POST /api/auth/login.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	pair, user, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeLoginFailure(w, r, req.Email, err)
		return
	}

	if h.lastLogins != nil {
		if err := h.lastLogins.UpdateLastLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
			h.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to record last login")
		}
	}
	h.logEvent(r, audit.EventTypeLogin, audit.EventStatusSuccess, func(e *audit.Event) {
		e.UserID = user.ID
		e.Email = user.Email
		e.Role = string(user.Role)
		e.CollegeID = user.CollegeID
	})

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		User: userSummary{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Role:      string(user.Role),
			CollegeID: user.CollegeID,
		},
	})
}

func (h *AuthHandlers) writeLoginFailure(w http.ResponseWriter, r *http.Request, email string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.logEvent(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, func(e *audit.Event) {
			e.Email = email
			e.Reason = "invalid_credentials"
		})
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrUserDisabled):
		h.logEvent(r, audit.EventTypeLoginFailed, audit.EventStatusDenied, func(e *audit.Event) {
			e.Email = email
			e.Reason = "user_disabled"
		})
		httputil.WriteForbidden(w, "account disabled")
	case errors.Is(err, auth.ErrResolverTransient):
		h.logger.WithError(err).Error("login: user store unavailable")
		httputil.WriteServiceUnavailable(w, "service unavailable")
	default:
		h.logger.WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh handles POST /api/auth/refresh. A reused refresh token is a
// theft signal: the session family is already revoked by the manager,
// here it is recorded as a security event.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeRefreshFailure(w, r, err)
		return
	}

	h.logEvent(r, audit.EventTypeRefresh, audit.EventStatusSuccess, nil)
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) writeRefreshFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrRefreshReuse):
		h.logEvent(r, audit.EventTypeRefreshReuse, audit.EventStatusDenied, func(e *audit.Event) {
			e.Reason = "refresh_reuse"
		})
		httputil.WriteUnauthorized(w, "invalid or expired credentials")
	case errors.Is(err, auth.ErrSessionRevoked),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrRefreshExpired),
		errors.Is(err, auth.ErrSessionConflict),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenBadSignature),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid or expired credentials")
	case errors.Is(err, auth.ErrUserDisabled):
		httputil.WriteForbidden(w, "account disabled")
	case errors.Is(err, auth.ErrResolverTransient):
		h.logger.WithError(err).Error("refresh: user store unavailable")
		httputil.WriteServiceUnavailable(w, "service unavailable")
	default:
		h.logger.WithError(err).Error("refresh failed")
		httputil.WriteInternalError(w)
	}
}

// logout handles POST /api/auth/logout. Revoking an already-revoked or
// swept session still returns 204.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := contextkeys.ClaimsFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "invalid or expired credentials")
		return
	}

	if err := h.sessions.Logout(r.Context(), claims); err != nil {
		h.logger.WithError(err).Error("logout failed")
		httputil.WriteInternalError(w)
		return
	}

	h.logEvent(r, audit.EventTypeLogout, audit.EventStatusSuccess, func(e *audit.Event) {
		e.UserID = claims.Subject
		e.SessionID = claims.SessionID
	})
	httputil.WriteNoContent(w)
}

// validateToken handles GET /api/auth/validate-token. Reaching the
// handler means the authenticator already accepted the token; the body
// echoes the resolved identity.
func (h *AuthHandlers) validateToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		httputil.WriteUnauthorized(w, "invalid or expired credentials")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"valid":      true,
		"user_id":    identity.Subject,
		"role":       string(identity.Role),
		"college_id": identity.CollegeID,
		"session_id": identity.SessionID,
	})
}

// logEvent writes one audit event enriched with request context.
// customize may be nil.
func (h *AuthHandlers) logEvent(r *http.Request, eventType audit.EventType, status audit.EventStatus, customize func(*audit.Event)) {
	event := audit.NewEvent(eventType, status)
	event.IPAddress = r.RemoteAddr
	event.UserAgent = r.UserAgent()
	event.RequestID = contextkeys.GetRequestID(r.Context())
	event.Method = r.Method
	event.Path = r.URL.Path
	if customize != nil {
		customize(event)
	}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Error("failed to write audit event")
	}
}
