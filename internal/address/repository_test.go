package address

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addressColumns = []string{
	"id", "user_id", "name", "receiver_name", "phone", "address_line1", "address_line2",
	"city", "province", "postal_code", "country", "is_default", "is_active",
}

func TestRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(addressColumns).AddRow(
			id.String(), int64(7), "Home", "Jane", "0812", "Street 1", nil,
			"Jakarta", "DKI", "15001", "ID", true, true,
		)
		mock.ExpectQuery("SELECT .* FROM addresses WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(rows)

		a, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Home", a.Name)
		require.NotNil(t, a.UserID)
		assert.Equal(t, uint(7), *a.UserID)
		assert.Nil(t, a.Address2)
	})

	t.Run("Snapshot without owner", func(t *testing.T) {
		rows := sqlmock.NewRows(addressColumns).AddRow(
			id.String(), nil, "Home", "Jane", "0812", "Street 1", "Unit 2",
			"Jakarta", "DKI", "15001", "ID", false, true,
		)
		mock.ExpectQuery("SELECT .* FROM addresses").WithArgs(id).WillReturnRows(rows)

		a, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, a.UserID)
		require.NotNil(t, a.Address2)
		assert.Equal(t, "Unit 2", *a.Address2)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM addresses").WithArgs(id).WillReturnError(sql.ErrNoRows)

		a, err := repo.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, ErrAddressNotFound)
		assert.Nil(t, a)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CopyForOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	uid := uint(3)
	src := &Address{ID: uuid.New(), UserID: &uid, Name: "Office", Address1: "Jl. Sudirman", City: "Jakarta", Postal: "10220", Country: "ID", IsDefault: true}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO addresses").WillReturnResult(sqlmock.NewResult(0, 1))

		snap, err := repo.CopyForOrder(context.Background(), db, src)
		require.NoError(t, err)
		assert.NotEqual(t, src.ID, snap.ID)
		assert.Nil(t, snap.UserID)
		assert.False(t, snap.IsDefault)
		assert.Equal(t, src.Address1, snap.Address1)
		// the source stays untouched
		assert.Equal(t, &uid, src.UserID)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO addresses").WillReturnError(errors.New("db error"))

		snap, err := repo.CopyForOrder(context.Background(), db, src)
		assert.Error(t, err)
		assert.Nil(t, snap)
	})
}

func TestRepository_StoreForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	a := &Address{Name: "Home", Address1: "Street 1", City: "Bandung", Postal: "40111", Country: "ID"}

	mock.ExpectExec("INSERT INTO addresses .* WHERE NOT EXISTS").
		WithArgs(sqlmock.AnyArg(), uint(9), "Home", "", "", "Street 1", nil, "Bandung", "", "40111", "ID").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.StoreForUser(context.Background(), db, 9, a))
	assert.NoError(t, mock.ExpectationsWereMet())
}
