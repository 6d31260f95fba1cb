package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/observability"
)

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Config sets token lifetimes.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager owns the credential-to-token lifecycle: password login,
// refresh with single-use rotation, and logout.
type Manager struct {
	codec   *auth.TokenCodec
	users   auth.CredentialStore
	store   Store
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager wires the manager. metrics may be nil.
func NewManager(codec *auth.TokenCodec, users auth.CredentialStore, store Store, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		codec:   codec,
		users:   users,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the manager's time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Login checks the credentials and opens a new session with a fresh
// token family. Unknown emails and wrong passwords both come back as
// ErrInvalidCredentials so callers cannot probe which emails exist.
func (m *Manager) Login(ctx context.Context, email, password string) (*TokenPair, *auth.User, error) {
	user, err := m.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			m.recordLogin(false)
			return nil, nil, auth.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %v", auth.ErrResolverTransient, err)
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		m.recordLogin(false)
		return nil, nil, auth.ErrInvalidCredentials
	}
	if user.Disabled && user.Role != auth.RoleAdmin {
		m.recordLogin(false)
		return nil, nil, fmt.Errorf("%w: user %s", auth.ErrUserDisabled, user.ID)
	}

	pair, err := m.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// LoginSSO opens a session for a user already authenticated by an
// external identity provider. The account must exist; SSO does not
// provision users.
func (m *Manager) LoginSSO(ctx context.Context, email string) (*TokenPair, *auth.User, error) {
	user, err := m.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			m.recordLogin(false)
			return nil, nil, auth.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %v", auth.ErrResolverTransient, err)
	}
	if user.Disabled && user.Role != auth.RoleAdmin {
		m.recordLogin(false)
		return nil, nil, fmt.Errorf("%w: user %s", auth.ErrUserDisabled, user.ID)
	}

	pair, err := m.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (m *Manager) openSession(ctx context.Context, user *auth.User) (*TokenPair, error) {
	now := m.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		FamilyID:  uuid.NewString(),
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(m.cfg.RefreshTTL).UTC(),
	}
	pair, refreshID, err := m.issuePair(user, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.RefreshID = refreshID
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.recordLogin(true)
	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	m.logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"role":       string(user.Role),
		"session_id": sess.ID,
	}).Info("login succeeded")
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the
// session's refresh id. A token that was already rotated away is
// treated as stolen: the whole family is revoked and the caller gets
// ErrRefreshReuse.
func (m *Manager) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	claims, err := m.codec.Verify(rawRefresh, auth.TokenRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", auth.ErrRefreshExpired, err)
		}
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: refresh token missing session id", auth.ErrTokenMalformed)
	}

	sess, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Revoked {
		return nil, fmt.Errorf("%w: session %s", auth.ErrSessionRevoked, sess.ID)
	}
	if sess.ExpiresAt.Before(m.now()) {
		return nil, fmt.Errorf("%w: session %s", auth.ErrRefreshExpired, sess.ID)
	}
	if claims.ID != sess.RefreshID {
		if revokeErr := m.store.RevokeFamily(ctx, sess.FamilyID); revokeErr != nil {
			m.logger.WithError(revokeErr).WithField("family_id", sess.FamilyID).
				Error("failed to revoke token family after reuse")
		}
		if m.metrics != nil {
			m.metrics.ReuseDetected.Inc()
		}
		m.logger.WithFields(map[string]interface{}{
			"user_id":    sess.UserID,
			"session_id": sess.ID,
			"family_id":  sess.FamilyID,
		}).Warn("refresh token reuse detected, family revoked")
		return nil, fmt.Errorf("%w: session %s", auth.ErrRefreshReuse, sess.ID)
	}

	// Re-read the user so the new access token carries the current
	// stored role, not whatever the old token said.
	user, err := m.users.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrResolverTransient, err)
	}
	if user.Disabled && user.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("%w: user %s", auth.ErrUserDisabled, user.ID)
	}

	pair, newRefreshID, err := m.issuePair(user, sess.ID)
	if err != nil {
		return nil, err
	}
	newExpiry := m.now().Add(m.cfg.RefreshTTL).UTC()
	if err := m.store.Rotate(ctx, sess.ID, claims.ID, newRefreshID, newExpiry); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.TokenRotations.Inc()
	}
	return pair, nil
}

// Logout revokes the session behind the given access token claims.
// Idempotent: logging out twice, or after the session was swept, still
// succeeds.
func (m *Manager) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims.SessionID == "" {
		return nil
	}
	revoked, err := m.store.Revoke(ctx, claims.SessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke session %s: %w", claims.SessionID, err)
	}
	// The gauge tracks live sessions; a repeated logout revokes nothing.
	if revoked && m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.WithFields(map[string]interface{}{
		"user_id":    claims.Subject,
		"session_id": claims.SessionID,
	}).Info("logout")
	return nil
}

// RevokeSession revokes one session by id. Used by admin tooling;
// idempotent like Logout.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	revoked, err := m.store.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke session %s: %w", sessionID, err)
	}
	if revoked && m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.WithField("session_id", sessionID).Info("session revoked")
	return nil
}

// Revoked reports whether the session behind the claims has been
// revoked. Missing sessions read as revoked: an unexpired access token
// whose session is gone should not keep working.
func (m *Manager) Revoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	if claims.SessionID == "" {
		return false, nil
	}
	sess, err := m.store.Get(ctx, claims.SessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Revoked, nil
}

func (m *Manager) issuePair(user *auth.User, sessionID string) (*TokenPair, string, error) {
	id := auth.Identity{
		Subject:   user.ID,
		Role:      user.Role,
		CollegeID: user.CollegeID,
		SessionID: sessionID,
	}
	access, _, err := m.codec.Issue(id, m.cfg.AccessTTL, auth.TokenAccess)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, refreshClaims, err := m.codec.Issue(id, m.cfg.RefreshTTL, auth.TokenRefresh)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
	}, refreshClaims.ID, nil
}

func (m *Manager) recordLogin(ok bool) {
	if m.metrics != nil {
		m.metrics.RecordLogin(ok)
	}
}
