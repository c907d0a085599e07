package payment

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

var paymentRowColumns = []string{
	"id", "gateway", "token", "is_active", "to_confirm",
	"charge_status", "authorized", "total", "captured_amount", "currency",
	"customer_email", "checkout_token", "order_id", "psp_reference", "return_url",
	"created_at",
}

func TestRepository_GetLastActiveForCheckout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	token := uuid.New()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(paymentRowColumns).AddRow(
			int64(3), GatewayStripe, "pm_1", true, false,
			"not-charged", false, "42.50", "0", "USD",
			"a@b.c", token.String(), nil, "", "",
			time.Now(),
		)
		mock.ExpectQuery(`SELECT .* FROM payments WHERE checkout_token = \$1 AND is_active = true`).
			WithArgs(token).
			WillReturnRows(rows)

		p, err := repo.GetLastActiveForCheckout(context.Background(), token)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, int64(3), p.ID)
		assert.Equal(t, ChargeNotCharged, p.ChargeStatus)
		assert.True(t, decimal.RequireFromString("42.50").Equal(p.Total))
		require.NotNil(t, p.CheckoutToken)
		assert.Equal(t, token, *p.CheckoutToken)
		assert.Nil(t, p.OrderID)
	})

	t.Run("None", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM payments`).WithArgs(token).WillReturnError(sql.ErrNoRows)

		p, err := repo.GetLastActiveForCheckout(context.Background(), token)
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM payments`).WithArgs(token).WillReturnError(errors.New("connection refused"))

		_, err := repo.GetLastActiveForCheckout(context.Background(), token)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByPSPReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT .* FROM payments WHERE gateway = \$1 AND psp_reference = \$2`).
		WithArgs(GatewayStripe, "pi_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByPSPReference(context.Background(), GatewayStripe, "pi_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT .* FROM payments WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRepository_UpdateAndSaveTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	p := &Payment{ID: 9, IsActive: true, ChargeStatus: ChargeFullyCharged, Authorized: true, CapturedAmount: decimal.RequireFromString("10.00"), PSPReference: "pi_9"}

	t.Run("Update", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments SET`).
			WithArgs(int64(9), true, false, "fully-charged", true, p.CapturedAmount, "pi_9").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Update(ctx, p))
	})

	t.Run("SaveTransaction", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO payment_transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), now))

		txn := &Transaction{PaymentID: 9, Kind: KindCapture, IsSuccess: true, Amount: decimal.RequireFromString("10.00"), Currency: "USD"}
		require.NoError(t, repo.SaveTransaction(ctx, txn))
		assert.Equal(t, int64(77), txn.ID)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	token := uuid.New()
	p := &Payment{Gateway: GatewayDummy, Token: "tok", Total: decimal.RequireFromString("42.50"), Currency: "USD", CheckoutToken: &token}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payments SET is_active = false`).
		WithArgs(token).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), time.Now()))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, int64(12), p.ID)
	assert.True(t, p.IsActive)
	assert.Equal(t, ChargeNotCharged, p.ChargeStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_OrderAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	token, orderID := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE payments SET order_id = \$1, updated_at = now\(\) WHERE checkout_token = \$2`).
		WithArgs(orderID, token).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(captured_amount\), 0\) FROM payments WHERE order_id = \$1`).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("42.50"))

	require.NoError(t, repo.AssignToOrder(ctx, db, token, orderID))
	total, err := repo.CapturedTotalForOrder(ctx, db, orderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("42.50").Equal(total))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SavePaymentWebhook(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	provider := "STRIPE"
	eventID := "evt-1"
	eventType := "payment_intent.succeeded"
	extID := "pi_1"
	payload := []byte(`{}`)
	valid := true

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_webhooks`).
			WithArgs(provider, eventID, eventType, extID, valid, payload).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

		id, isDup, err := repo.SavePaymentWebhook(ctx, provider, eventID, eventType, extID, payload, valid)
		assert.NoError(t, err)
		assert.False(t, isDup)
		assert.Equal(t, int64(10), id)
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_webhooks`).
			WithArgs(provider, eventID, eventType, extID, valid, payload).
			WillReturnError(sql.ErrNoRows)

		id, isDup, err := repo.SavePaymentWebhook(ctx, provider, eventID, eventType, extID, payload, valid)
		assert.NoError(t, err)
		assert.True(t, isDup)
		assert.Equal(t, int64(0), id)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_webhooks`).
			WillReturnError(errors.New("db error"))

		_, _, err := repo.SavePaymentWebhook(ctx, provider, eventID, eventType, extID, payload, valid)
		assert.Error(t, err)
	})
}

func TestRepository_WebhookUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id := int64(1)

	t.Run("MarkProcessed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payment_webhooks SET processed_at = now\(\) WHERE id = \$1`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkWebhookProcessed(ctx, id))
	})

	t.Run("MarkFailed", func(t *testing.T) {
		reason := "error"
		mock.ExpectExec(`UPDATE payment_webhooks SET process_error = \$2 WHERE id = \$1`).
			WithArgs(id, reason).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkWebhookFailed(ctx, id, reason))
	})

	t.Run("MarkFailed_Error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payment_webhooks SET process_error = \$2 WHERE id = \$1`).
			WithArgs(id, "boom").
			WillReturnError(errors.New("db error"))

		assert.Error(t, repo.MarkWebhookFailed(ctx, id, "boom"))
	})
}
