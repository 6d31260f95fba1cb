package sso

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/httputil"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/session"
)

// stateCookie carries the CSRF state between the redirect and the
// callback. Short-lived; one login attempt.
const stateCookie = "pragati_sso_state"

const stateTTL = 10 * time.Minute

// Handlers exposes the OIDC login flow over HTTP.
type Handlers struct {
	provider Authenticator
	sessions *session.Manager
	audit    audit.Logger
	logger   *observability.Logger
}

// NewHandlers wires the SSO endpoints. auditLog may be a NopLogger.
func NewHandlers(provider Authenticator, sessions *session.Manager, auditLog audit.Logger, logger *observability.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		sessions: sessions,
		audit:    auditLog,
		logger:   logger,
	}
}

// RegisterRoutes mounts the SSO routes on the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/sso/login", h.initiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/sso/callback", h.handleCallback).Methods(http.MethodGet)
}

// initiateLogin sets the state cookie and redirects to the provider's
// authorization endpoint.
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		h.logger.WithError(err).Error("failed to generate SSO state")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/sso",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback finishes the authorization-code flow and opens a
// local session for the asserted email.
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.WithField("provider_error", errCode).Warn("SSO provider returned an error")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	if err := h.checkState(r); err != nil {
		h.logger.WithError(err).Warn("SSO state check failed")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}
	clearState(w)

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	profile, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("SSO code exchange failed")
		h.logAudit(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, "", "sso_exchange_failed")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	pair, user, err := h.sessions.LoginSSO(r.Context(), profile.Email)
	if err != nil {
		h.logger.WithError(err).WithField("email", profile.Email).Warn("SSO login rejected")
		switch {
		case errors.Is(err, auth.ErrUserDisabled):
			h.logAudit(r, audit.EventTypeLoginFailed, audit.EventStatusDenied, profile.Email, "user_disabled")
			httputil.WriteForbidden(w, "account disabled")
		case errors.Is(err, auth.ErrResolverTransient):
			httputil.WriteServiceUnavailable(w, "service unavailable")
		default:
			h.logAudit(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, profile.Email, "no_local_account")
			httputil.WriteUnauthorized(w, "authentication failed")
		}
		return
	}

	event := audit.NewEvent(audit.EventTypeLogin, audit.EventStatusSuccess)
	event.UserID = user.ID
	event.Email = user.Email
	event.Role = string(user.Role)
	event.IPAddress = r.RemoteAddr
	event.Metadata = map[string]interface{}{"method": "sso", "subject": profile.Subject}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Error("failed to write audit event")
	}

	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handlers) checkState(r *http.Request) error {
	state := r.URL.Query().Get("state")
	if state == "" {
		return fmt.Errorf("missing state parameter")
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		return fmt.Errorf("missing state cookie")
	}
	if cookie.Value != state {
		return fmt.Errorf("state mismatch")
	}
	return nil
}

func (h *Handlers) logAudit(r *http.Request, eventType audit.EventType, status audit.EventStatus, email, reason string) {
	event := audit.NewEvent(eventType, status)
	event.Email = email
	event.Reason = reason
	event.IPAddress = r.RemoteAddr
	event.Metadata = map[string]interface{}{"method": "sso"}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Error("failed to write audit event")
	}
}

func clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/api/auth/sso",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
