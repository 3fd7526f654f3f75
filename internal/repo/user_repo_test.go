package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{
	"id", "name", "email", "phone_full", "phone_icc", "phone_nsn", "password_digest", "role",
	"email_verified", "phone_verified", "codes", "device_token", "last_login_at", "created_at", "updated_at", "version",
}

func newMockUserRepo(t *testing.T) (*userRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &userRepo{db: db, now: func() time.Time { return now }}, mock
}

func TestUserRepo_FindByID(t *testing.T) {
	r, mock := newMockUserRepo(t)
	id := uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	codes := `{"email-verify":{"purpose":"email-verify","digest":"abc","issued_at":"2024-03-01T12:00:00Z","expires_at":"2024-03-01T12:10:00Z","consumed":false}}`

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			id.String(), "Ann", "ann@example.com", nil, nil, nil, "digest", "user",
			false, false, codes, nil, nil, created, created, 3,
		))

	u, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	require.NotNil(t, u.Email)
	assert.Equal(t, "ann@example.com", *u.Email)
	assert.Nil(t, u.Phone)
	assert.Nil(t, u.DeviceToken)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Equal(t, 3, u.Version)

	c, ok := u.Code(model.PurposeEmailVerify)
	require.True(t, ok)
	assert.Equal(t, "abc", c.Digest)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC), c.ExpiresAt.UTC())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_FindByIDNotFound(t *testing.T) {
	r, mock := newMockUserRepo(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, err := r.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_FindByIdentifierNormalizes(t *testing.T) {
	r, mock := newMockUserRepo(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1 OR phone_full = \$1`).
		WithArgs("+15550001").
		WillReturnError(sql.ErrNoRows)

	_, err := r.FindByIdentifier(context.Background(), " +1 555 0001 ")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = r.FindByIdentifier(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	r, mock := newMockUserRepo(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	email := "ann@example.com"
	err := r.Create(context.Background(), &model.User{ID: uuid.New(), Email: &email, Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepo_Create(t *testing.T) {
	r, mock := newMockUserRepo(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))

	email := "ann@example.com"
	u := &model.User{ID: uuid.New(), Email: &email, Role: model.RoleUser}
	require.NoError(t, r.Create(context.Background(), u))
	assert.Equal(t, 1, u.Version)
	assert.False(t, u.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SaveAdvancesVersion(t *testing.T) {
	r, mock := newMockUserRepo(t)
	u := &model.User{ID: uuid.New(), Role: model.RoleUser, Version: 4}

	mock.ExpectExec(`UPDATE users .* WHERE id = \$1 AND version = \$2`).
		WithArgs(sqlmock.AnyArg(), 4, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "{}", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background(), u))
	assert.Equal(t, 5, u.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SaveStale(t *testing.T) {
	r, mock := newMockUserRepo(t)
	mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 0))

	u := &model.User{ID: uuid.New(), Role: model.RoleUser, Version: 2}
	assert.ErrorIs(t, r.Save(context.Background(), u), ErrStale)
	assert.Equal(t, 2, u.Version)
}

func TestUserRepo_SaveWrapsDriverErrors(t *testing.T) {
	r, mock := newMockUserRepo(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(`UPDATE users`).WillReturnError(boom)

	err := r.Save(context.Background(), &model.User{ID: uuid.New(), Version: 1})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStale)
}
