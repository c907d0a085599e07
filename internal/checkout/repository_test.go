package checkout

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var checkoutColumns = []string{
	"token", "created_at", "updated_at", "user_id", "email",
	"slug", "is_active", "currency", "country", "language_code",
	"billing_address_id", "shipping_address_id",
	"id", "name", "price",
	"voucher_code", "discount", "discount_name", "translated_discount_name",
	"order_type", "note", "tracking_code", "redirect_url",
	"metadata", "private_metadata",
}

func TestRepository_GetByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	token := uuid.New()
	billing := uuid.New()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(checkoutColumns).AddRow(
			token.String(), now, now, int64(12), "buyer@example.com",
			"default-channel", true, "USD", "NL", "nl",
			billing.String(), nil,
			int64(4), "Courier", "7.50",
			"WELCOME10", "10.00", "Welcome", nil,
			OrderTypeDelivery, "ring twice", "", "",
			[]byte(`{"source":"app"}`), nil,
		)
		mock.ExpectQuery("SELECT .* FROM checkouts c").WithArgs(token).WillReturnRows(rows)

		c, err := repo.GetByToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, token, c.Token)
		require.NotNil(t, c.UserID)
		assert.Equal(t, uint(12), *c.UserID)
		require.NotNil(t, c.BillingAddressID)
		assert.Equal(t, billing, *c.BillingAddressID)
		assert.Nil(t, c.ShippingAddressID)
		require.NotNil(t, c.ShippingMethod)
		assert.Equal(t, "Courier", c.ShippingMethod.Name)
		assert.True(t, decimal.RequireFromString("7.5").Equal(c.ShippingMethod.Price))
		require.NotNil(t, c.VoucherCode)
		assert.Equal(t, "WELCOME10", *c.VoucherCode)
		assert.True(t, c.IsDelivery())
		assert.Equal(t, "app", c.Metadata["source"])
		assert.Empty(t, c.PrivateMetadata)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM checkouts c").WithArgs(token).WillReturnError(sql.ErrNoRows)

		c, err := repo.GetByToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrCheckoutNotFound)
		assert.Nil(t, c)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token := uuid.New()
	lineID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "quantity", "option_value_ids", "id", "sku", "name", "id", "name", "price", "is_shipping_required",
	}).AddRow(lineID.String(), 2, "{3,4}", int64(100), "SKU-1", "Large", int64(10), "Shirt", "19.99", true)

	mock.ExpectQuery("SELECT .* FROM checkout_lines l").WithArgs(token).WillReturnRows(rows)

	lines, err := NewRepository(db).GetLines(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, lineID, lines[0].ID)
	assert.Equal(t, []int64{3, 4}, lines[0].OptionValueIDs)
	assert.Equal(t, "Shirt", lines[0].Variant.ProductName)
	assert.True(t, IsShippingRequired(lines))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	token := uuid.New()
	ctx := context.Background()

	t.Run("Locked", func(t *testing.T) {
		mock.ExpectQuery("SELECT token FROM checkouts WHERE token = \\$1 FOR UPDATE").
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow(token.String()))

		ok, err := repo.LockForCompletion(ctx, db, token)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AlreadyGone", func(t *testing.T) {
		mock.ExpectQuery("SELECT token FROM checkouts").WithArgs(token).WillReturnError(sql.ErrNoRows)

		ok, err := repo.LockForCompletion(ctx, db, token)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM checkouts WHERE token = \\$1").WithArgs(token).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(ctx, db, token))
	})

	t.Run("DeleteError", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM checkouts").WithArgs(token).WillReturnError(errors.New("db error"))
		assert.Error(t, repo.Delete(ctx, db, token))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateRedirectAndTracking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token := uuid.New()
	mock.ExpectExec("UPDATE checkouts SET redirect_url").
		WithArgs(token, "https://shop.example.com/thanks", "ga-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db).UpdateRedirectAndTracking(context.Background(), token, "https://shop.example.com/thanks", "ga-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
