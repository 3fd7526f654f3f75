package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepo_IsOwnedBy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewOrderRepo(db)

	orderID, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	owned, err := r.IsOwnedBy(context.Background(), orderID.String(), userID.String())
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = r.IsOwnedBy(context.Background(), "not-a-uuid", userID.String())
	require.NoError(t, err)
	assert.False(t, owned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewOrderRepo(db)

	userID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, user_id, car_id, purpose, status, created_at\s+FROM orders\s+WHERE user_id = \$1`).
		WithArgs(sqlmock.AnyArg(), 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "car_id", "purpose", "status", "created_at"}).
			AddRow(uuid.NewString(), userID.String(), uuid.NewString(), "rent", "pending", now))

	orders, err := r.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, userID, orders[0].UserID)
	assert.Equal(t, "rent", orders[0].Purpose)
}

func TestOrderRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewOrderRepo(db)

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM orders WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM orders WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Delete(context.Background(), id))
	assert.ErrorIs(t, r.Delete(context.Background(), id), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryOrderRepo(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := model.Order{ID: uuid.New(), UserID: userID, CreatedAt: base}
	newer := model.Order{ID: uuid.New(), UserID: userID, CreatedAt: base.Add(time.Hour)}
	r := NewMemoryOrderRepo(older, newer, model.Order{ID: uuid.New(), UserID: uuid.New()})

	orders, err := r.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)

	page, err := r.ListByUser(context.Background(), userID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].ID)

	owned, err := r.IsOwnedBy(context.Background(), older.ID.String(), userID.String())
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = r.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
