package sso

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestConfigValidate(t *testing.T) {
	valid := Config{
		IssuerURL:    "https://idp.pragati.example",
		ClientID:     "pragati",
		ClientSecret: "hunter2",
		RedirectURL:  "https://pragati.example/api/auth/sso/callback",
		Scopes:       []string{"openid", "profile", "email"},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "default scopes", mutate: func(c *Config) { c.Scopes = nil }},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: "client_id"},
		{name: "missing client secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantErr: "client_secret"},
		{name: "missing issuer", mutate: func(c *Config) { c.IssuerURL = "" }, wantErr: "issuer_url"},
		{name: "missing redirect", mutate: func(c *Config) { c.RedirectURL = "" }, wantErr: "redirect_url"},
		{name: "no openid scope", mutate: func(c *Config) { c.Scopes = []string{"profile", "email"} }, wantErr: "openid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProfileFromClaims(t *testing.T) {
	profile, err := profileFromClaims(map[string]interface{}{
		"email": "  Mentor@Pragati.EDU ",
		"name":  "A Mentor",
	}, "idp-subject-1")
	require.NoError(t, err)
	assert.Equal(t, "idp-subject-1", profile.Subject)
	assert.Equal(t, "mentor@pragati.edu", profile.Email)
	assert.Equal(t, "A Mentor", profile.Name)

	profile, err = profileFromClaims(map[string]interface{}{
		"email":              "m@pragati.edu",
		"preferred_username": "mentor1",
	}, "idp-subject-2")
	require.NoError(t, err)
	assert.Equal(t, "mentor1", profile.Name)

	_, err = profileFromClaims(map[string]interface{}{"name": "No Email"}, "idp-subject-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")

	_, err = profileFromClaims(map[string]interface{}{"email": "m@pragati.edu"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

type stubProvider struct {
	profile *Profile
	err     error
}

func (s *stubProvider) AuthCodeURL(state string) string {
	return "https://idp.pragati.example/authorize?state=" + state
}

func (s *stubProvider) Exchange(context.Context, string) (*Profile, error) {
	return s.profile, s.err
}

type stubUsers struct {
	byEmail map[string]*auth.User
	err     error
}

func (s *stubUsers) GetUser(ctx context.Context, id string) (*auth.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *stubUsers) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

func newTestHandlers(t *testing.T, provider Authenticator, users *stubUsers) *Handlers {
	t.Helper()
	codec, err := auth.NewTokenCodec(testSecret, auth.DefaultLeeway)
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	mgr := session.NewManager(codec, users, session.NewMemoryStore(), session.Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, logger, nil)
	return NewHandlers(provider, mgr, audit.NopLogger{}, logger)
}

func callbackRequest(state, code string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?state="+state+"&code="+code, nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: state})
	return req
}

func TestInitiateLoginRedirects(t *testing.T) {
	handlers := newTestHandlers(t, &stubProvider{}, &stubUsers{})
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/sso/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	var state string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == stateCookie {
			state = cookie.Value
			assert.True(t, cookie.HttpOnly)
		}
	}
	require.NotEmpty(t, state)
	assert.Equal(t, "https://idp.pragati.example/authorize?state="+state, rec.Header().Get("Location"))
}

func TestCallbackOpensSession(t *testing.T) {
	users := &stubUsers{byEmail: map[string]*auth.User{
		"mentor@pragati.edu": {ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor},
	}}
	provider := &stubProvider{profile: &Profile{Subject: "idp-1", Email: "mentor@pragati.edu"}}
	handlers := newTestHandlers(t, provider, users)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest("state-1", "code-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")
	assert.Contains(t, rec.Body.String(), "refresh_token")
}

func TestCallbackRejections(t *testing.T) {
	users := &stubUsers{byEmail: map[string]*auth.User{
		"mentor@pragati.edu":   {ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor},
		"disabled@pragati.edu": {ID: "u2", Email: "disabled@pragati.edu", Role: auth.RoleUser, Disabled: true},
	}}

	t.Run("state mismatch", func(t *testing.T) {
		handlers := newTestHandlers(t, &stubProvider{}, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?state=forged&code=c", nil)
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: "original"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		handlers := newTestHandlers(t, &stubProvider{}, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?state=s&code=c", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("provider error", func(t *testing.T) {
		handlers := newTestHandlers(t, &stubProvider{}, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?error=access_denied", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		handlers := newTestHandlers(t, &stubProvider{}, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("s1", ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exchange failure", func(t *testing.T) {
		handlers := newTestHandlers(t, &stubProvider{err: errors.New("idp unreachable")}, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("s1", "c1"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no local account", func(t *testing.T) {
		provider := &stubProvider{profile: &Profile{Subject: "idp-9", Email: "stranger@elsewhere.example"}}
		handlers := newTestHandlers(t, provider, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("s1", "c1"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("disabled account", func(t *testing.T) {
		provider := &stubProvider{profile: &Profile{Subject: "idp-2", Email: "disabled@pragati.edu"}}
		handlers := newTestHandlers(t, provider, users)
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("s1", "c1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("store outage", func(t *testing.T) {
		provider := &stubProvider{profile: &Profile{Subject: "idp-1", Email: "mentor@pragati.edu"}}
		handlers := newTestHandlers(t, provider, &stubUsers{err: errors.New("db down")})
		router := mux.NewRouter()
		handlers.RegisterRoutes(router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("s1", "c1"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
