package userstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragati-platform/identity/pkg/auth"
)

var userCols = []string{"id", "email", "name", "role", "college_id", "disabled", "password_hash", "created_at", "last_login_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, "sqlite3"), mock
}

func TestGetUser(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id = ?").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "m@pragati.edu", "Mentor One", "mentor", "clg-1", false, "hash", created, nil))

	u, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, auth.RoleMentor, u.Role)
	assert.Equal(t, "clg-1", u.CollegeID)
	assert.Nil(t, u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id = ?").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestGetUserByEmailNormalizes(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE email = ?").
		WithArgs("m@pragati.edu").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "m@pragati.edu", "Mentor One", "mentor", "clg-1", false, "hash", created, created))

	u, err := store.GetUserByEmail(context.Background(), "  M@Pragati.EDU ")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, created, *u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholderRebind(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := New(db, "postgres")

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id = $1").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)").
		WithArgs("u2", "new@pragati.edu", "New User", "user", "clg-1", false,
			[]byte("hash"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateUser(context.Background(), &auth.User{
		ID:           "u2",
		Email:        "New@Pragati.edu",
		Name:         "New User",
		Role:         auth.RoleUser,
		CollegeID:    "clg-1",
		PasswordHash: []byte("hash"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserInvalidRole(t *testing.T) {
	store, _ := newMockStore(t)
	err := store.CreateUser(context.Background(), &auth.User{ID: "u3", Role: "superhero"})
	assert.Error(t, err)
}

func TestSetRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users SET role = ? WHERE id = ?").
		WithArgs("coordinator", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetRole(context.Background(), "u1", auth.RoleCoordinator))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRoleMissingUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users SET role = ? WHERE id = ?").
		WithArgs("coordinator", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetRole(context.Background(), "ghost", auth.RoleCoordinator)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestSetDisabled(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE users SET disabled = ? WHERE id = ?").
		WithArgs(true, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetDisabled(context.Background(), "u1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
