package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/middleware"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/policy"
	"github.com/pragati-platform/identity/pkg/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubUsers struct {
	mu   sync.Mutex
	byID map[string]*auth.User
	err  error
}

func newStubUsers(users ...*auth.User) *stubUsers {
	s := &stubUsers{byID: make(map[string]*auth.User)}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) GetUser(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, auth.ErrUserNotFound
}

func (s *stubUsers) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *stubUsers) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.byID[u.ID] = &copied
	return nil
}

func (s *stubUsers) SetRole(ctx context.Context, id string, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (s *stubUsers) SetDisabled(ctx context.Context, id string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Disabled = disabled
	return nil
}

func (s *stubUsers) SetPassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = []byte(passwordHash)
	return nil
}

func (s *stubUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return hash
}

type fixture struct {
	server   *Server
	users    *stubUsers
	sessions *session.Manager
}

func newFixture(t *testing.T, users *stubUsers) *fixture {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	codec, err := auth.NewTokenCodec(testSecret, auth.DefaultLeeway)
	require.NoError(t, err)

	mgr := session.NewManager(codec, users, session.NewMemoryStore(), session.Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, logger, nil)
	resolver := auth.NewResolver(users, 0, 0)
	authn := middleware.NewAuthenticator(codec, mgr, resolver, policy.DefaultTable(), logger, nil)

	server := NewServer(authn, Options{CORSOrigins: []string{"https://app.pragati.edu"}}, logger)
	server.Register(NewAuthHandlers(mgr, users, nil, audit.NopLogger{}, logger))
	server.Register(NewAdminHandlers(users, resolver, mgr, audit.NopLogger{}, logger))

	return &fixture{server: server, users: users, sessions: mgr}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) loginResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "u1", Email: "mentor@pragati.edu", Name: "A Mentor", Role: auth.RoleMentor, PasswordHash: mustHash(t, "s3cret-pass")},
		&auth.User{ID: "u2", Email: "off@pragati.edu", Role: auth.RoleUser, Disabled: true, PasswordHash: mustHash(t, "s3cret-pass")},
	)
	f := newFixture(t, users)

	t.Run("success", func(t *testing.T) {
		resp := f.login(t, "mentor@pragati.edu", "s3cret-pass")
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, int64(900), resp.ExpiresIn)
		assert.Equal(t, "u1", resp.User.ID)
		assert.Equal(t, "mentor", resp.User.Role)

		u, err := users.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.NotNil(t, u.LastLoginAt)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "mentor@pragati.edu", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email matches wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "ghost@pragati.edu", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("disabled account", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "off@pragati.edu", Password: "s3cret-pass"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "mentor@pragati.edu"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store outage", func(t *testing.T) {
		users.mu.Lock()
		users.err = errors.New("db down")
		users.mu.Unlock()
		defer func() {
			users.mu.Lock()
			users.err = nil
			users.mu.Unlock()
		}()
		rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "mentor@pragati.edu", Password: "s3cret-pass"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor, PasswordHash: mustHash(t, "s3cret-pass")},
	)
	f := newFixture(t, users)
	first := f.login(t, "mentor@pragati.edu", "s3cret-pass")

	rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair session.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEqual(t, first.RefreshToken, pair.RefreshToken)

	t.Run("reuse of rotated token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("family revoked after reuse", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: "not-a-token"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", refreshRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutAndValidate(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor, CollegeID: "c1", PasswordHash: mustHash(t, "s3cret-pass")},
	)
	f := newFixture(t, users)
	resp := f.login(t, "mentor@pragati.edu", "s3cret-pass")

	rec := f.do(t, http.MethodGet, "/api/auth/validate-token", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"user_id":"u1"`)
	assert.Contains(t, rec.Body.String(), `"role":"mentor"`)

	rec = f.do(t, http.MethodPost, "/api/auth/logout", resp.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The revoked session kills the still-unexpired access token.
	rec = f.do(t, http.MethodGet, "/api/auth/validate-token", resp.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/auth/validate-token", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "admin-1", Email: "root@pragati.edu", Role: auth.RoleAdmin, PasswordHash: mustHash(t, "s3cret-pass")},
		&auth.User{ID: "u1", Email: "student@pragati.edu", Role: auth.RoleUser, PasswordHash: mustHash(t, "s3cret-pass")},
	)
	f := newFixture(t, users)
	admin := f.login(t, "root@pragati.edu", "s3cret-pass")
	student := f.login(t, "student@pragati.edu", "s3cret-pass")

	t.Run("non-admin denied by default", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/admin/users", student.AccessToken, createUserRequest{Email: "x@pragati.edu", Role: "user"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("create user with temp password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/admin/users", admin.AccessToken, createUserRequest{
			Email:     "New@Pragati.EDU",
			Name:      "New Student",
			Role:      "user",
			CollegeID: "c1",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created createUserResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "new@pragati.edu", created.User.Email)
		assert.NotEmpty(t, created.TempPassword)

		login := f.login(t, "new@pragati.edu", created.TempPassword)
		assert.Equal(t, created.User.ID, login.User.ID)
	})

	t.Run("scoped role requires college", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/admin/users", admin.AccessToken, createUserRequest{
			Email: "coord@pragati.edu",
			Role:  "coordinator",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/admin/users", admin.AccessToken, createUserRequest{Email: "y@pragati.edu", Role: "superuser"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("role change takes effect", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/admin/users/u1/role", admin.AccessToken, setRoleRequest{Role: "mentor"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// The student's access token now carries a stale role and is
		// rejected on the next request.
		rec = f.do(t, http.MethodGet, "/api/auth/validate-token", student.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("role change for missing user", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/admin/users/ghost/role", admin.AccessToken, setRoleRequest{Role: "mentor"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("disable and re-enable", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/admin/users/u1/status", admin.AccessToken, setStatusRequest{Disabled: true})
		require.Equal(t, http.StatusOK, rec.Code)
		u, err := users.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, u.Disabled)

		rec = f.do(t, http.MethodPut, "/api/admin/users/u1/status", admin.AccessToken, setStatusRequest{Disabled: false})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("password reset", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/admin/users/u1/password", admin.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			TempPassword string `json:"temp_password"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.TempPassword)

		login := f.login(t, "student@pragati.edu", resp.TempPassword)
		assert.Equal(t, "u1", login.User.ID)
	})

	t.Run("get user", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/admin/users/u1", admin.AccessToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/admin/users/ghost", admin.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("revoke session", func(t *testing.T) {
		victim := f.login(t, "root@pragati.edu", "s3cret-pass")
		rec := f.do(t, http.MethodGet, "/api/auth/validate-token", victim.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		codec, err := auth.NewTokenCodec(testSecret, auth.DefaultLeeway)
		require.NoError(t, err)
		claims, err := codec.Verify(victim.AccessToken, auth.TokenAccess)
		require.NoError(t, err)

		rec = f.do(t, http.MethodDelete, "/api/admin/sessions/"+claims.SessionID, admin.AccessToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/auth/validate-token", victim.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLoginRateLimit(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor, PasswordHash: mustHash(t, "s3cret-pass")},
	)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	codec, err := auth.NewTokenCodec(testSecret, auth.DefaultLeeway)
	require.NoError(t, err)
	mgr := session.NewManager(codec, users, session.NewMemoryStore(), session.Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, logger, nil)
	resolver := auth.NewResolver(users, 0, 0)
	authn := middleware.NewAuthenticator(codec, mgr, resolver, policy.DefaultTable(), logger, nil)

	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Hour,
		BurstSize:         0,
	})
	server := NewServer(authn, Options{}, logger)
	server.Register(NewAuthHandlers(mgr, nil, middleware.LoginRateLimit(limiter), audit.NopLogger{}, logger))

	body := func() io.Reader {
		data, _ := json.Marshal(loginRequest{Email: "mentor@pragati.edu", Password: "nope"})
		return bytes.NewReader(data)
	}
	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body())
		req.RemoteAddr = "203.0.113.7:4242"
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestCORSHeaders(t *testing.T) {
	users := newStubUsers(
		&auth.User{ID: "u1", Email: "mentor@pragati.edu", Role: auth.RoleMentor, PasswordHash: mustHash(t, "s3cret-pass")},
	)
	f := newFixture(t, users)

	t.Run("allowed origin echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.Header.Set("Origin", "https://app.pragati.edu")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		assert.Equal(t, "https://app.pragati.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight answered without auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/admin/users", nil)
		req.Header.Set("Origin", "https://app.pragati.edu")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.pragati.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
