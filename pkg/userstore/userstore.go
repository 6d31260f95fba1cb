// Package userstore provides the SQL-backed user lookup behind login
// and identity resolution. It speaks plain database/sql and runs on
// postgres in production and sqlite in dev mode.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pragati-platform/identity/pkg/auth"
)

const userColumns = "id, email, name, role, college_id, disabled, password_hash, created_at, last_login_at"

// Store reads and mutates user records. It satisfies both
// auth.UserStore and auth.CredentialStore.
type Store struct {
	db       *sql.DB
	postgres bool
}

// New wraps an open database handle. driver is the database/sql driver
// name ("postgres" or "sqlite3"); it controls placeholder syntax.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, postgres: driver == "postgres"}
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	return scanUser(row, id)
}

// GetUserByEmail loads a user by email. Emails are stored lowercase.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	return scanUser(row, email)
}

// CreateUser inserts a new user record.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		u.ID, u.Email, u.Name, string(u.Role), u.CollegeID, u.Disabled,
		u.PasswordHash, u.CreatedAt, nullTime(u.LastLoginAt))
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateLastLogin stamps the login time. Best-effort bookkeeping; the
// login flow succeeds even if this write is lost.
func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "UPDATE users SET last_login_at = ? WHERE id = ?", at.UTC(), id)
}

// SetRole changes a user's stored role. The resolver picks this up on
// the user's next request (or after its cache entry expires).
func (s *Store) SetRole(ctx context.Context, id string, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return s.exec(ctx, "UPDATE users SET role = ? WHERE id = ?", string(role), id)
}

// SetDisabled flips a user's active flag.
func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return s.exec(ctx, "UPDATE users SET disabled = ? WHERE id = ?", disabled, id)
}

// SetPassword replaces the stored password hash.
func (s *Store) SetPassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, key string) (*auth.User, error) {
	var (
		u         auth.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.CollegeID,
		&u.Disabled, &u.PasswordHash, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", key, err)
	}
	u.Role = auth.Role(role)
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
