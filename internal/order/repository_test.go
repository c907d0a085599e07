package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"warimas-checkout/internal/money"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderRowColumns = []string{
	"id", "number", "checkout_token", "status", "origin",
	"user_id", "user_email", "channel_slug", "currency", "language_code",
	"total_net", "total_gross", "undiscounted_total_net", "undiscounted_total_gross",
	"shipping_price_net", "shipping_price_gross", "total_paid",
	"redirect_url", "created_at",
}

func TestRepository_GetByCheckoutToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id, token := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE checkout_token = \$1$`).
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
				id.String(), "ORD-1", token.String(), "unconfirmed", "checkout",
				int64(7), "a@b.c", "default", "USD", "en",
				"40.00", "44.00", "45.00", "49.00",
				"5.00", "5.50", "44.00",
				"", time.Now(),
			))

		o, err := repo.GetByCheckoutToken(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, o)
		assert.Equal(t, id, o.ID)
		assert.Equal(t, StatusUnconfirmed, o.Status)
		require.NotNil(t, o.UserID)
		assert.Equal(t, uint(7), *o.UserID)
		assert.True(t, dec("44.00").Equal(o.Total.Gross))
		assert.Equal(t, "USD", o.Total.Currency)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders`).WithArgs(token).WillReturnError(sql.ErrNoRows)

		o, err := repo.GetByCheckoutToken(ctx, token)
		assert.NoError(t, err)
		assert.Nil(t, o)
	})

	t.Run("ForUpdate", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE checkout_token = \$1 FOR UPDATE`).
			WithArgs(token).
			WillReturnError(sql.ErrNoRows)

		o, err := repo.GetByCheckoutTokenForUpdate(ctx, db, token)
		assert.NoError(t, err)
		assert.Nil(t, o)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders`).WillReturnError(errors.New("db error"))

		_, err := repo.GetByCheckoutToken(ctx, token)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()

	o := &Order{
		ID:            uuid.New(),
		Number:        "ORD-1",
		CheckoutToken: uuid.New(),
		Status:        StatusUnfulfilled,
		Origin:        OriginCheckout,
		Currency:      "USD",
		Total:         money.Untaxed(dec("10.00"), "USD"),
	}

	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Insert(ctx, db, o))
	assert.Equal(t, now, o.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertDiscount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	orderID := uuid.New()
	d := &Discount{
		OrderID:     orderID,
		Type:        DiscountTypeVoucher,
		ValueType:   "fixed",
		Value:       dec("5.00"),
		Amount:      dec("5.00"),
		Currency:    "USD",
		Name:        "Save 5",
		VoucherCode: "SAVE5",
		Voucher:     json.RawMessage(`{"id":3}`),
	}

	mock.ExpectQuery(`INSERT INTO order_discounts`).
		WithArgs(orderID, DiscountTypeVoucher, "fixed", "5", "5", "USD", "Save 5", "", "SAVE5", []byte(`{"id":3}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	require.NoError(t, repo.InsertDiscount(context.Background(), db, d))
	assert.Equal(t, int64(11), d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	orderID := uuid.New()
	withOptions := Line{
		ID: uuid.New(), OrderID: orderID, VariantID: 1, Quantity: 2, Currency: "USD",
		Options: []OptionSnapshot{{ID: 9, Name: "Gift wrap", Type: "wrap", Price: dec("1.50"), Currency: "USD"}},
	}
	plain := Line{ID: uuid.New(), OrderID: orderID, VariantID: 2, Quantity: 1, Currency: "USD"}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO order_lines`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO order_line_option_values .* unnest\(\$2::bigint\[\]\)`).
			WithArgs(withOptions.ID, "{9}").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO order_lines`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.InsertLines(context.Background(), db, []Line{withOptions, plain}))
	})

	t.Run("LineError", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO order_lines`).WillReturnError(errors.New("constraint violation"))

		assert.Error(t, repo.InsertLines(context.Background(), db, []Line{plain}))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateTotalPaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orderID := uuid.New()
	mock.ExpectExec(`UPDATE orders SET total_paid = \$2`).
		WithArgs(orderID, "44").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRepository(db).UpdateTotalPaid(context.Background(), db, orderID, dec("44.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
