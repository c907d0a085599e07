package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	// GetLastActiveForCheckout returns nil when the checkout has no active payment.
	GetLastActiveForCheckout(ctx context.Context, checkoutToken uuid.UUID) (*Payment, error)
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByPSPReference(ctx context.Context, gateway, pspReference string) (*Payment, error)
	// Create stores p as the checkout's only active payment.
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	SaveTransaction(ctx context.Context, t *Transaction) error

	AssignToOrder(ctx context.Context, q db.Querier, checkoutToken, orderID uuid.UUID) error
	CapturedTotalForOrder(ctx context.Context, q db.Querier, orderID uuid.UUID) (decimal.Decimal, error)

	SavePaymentWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `
	id, gateway, token, is_active, to_confirm,
	charge_status, authorized, total, captured_amount, currency,
	customer_email, checkout_token, order_id, psp_reference, return_url,
	created_at
`

func scanPayment(row interface{ Scan(dest ...any) error }) (*Payment, error) {
	var (
		p             Payment
		checkoutToken uuid.NullUUID
		orderID       uuid.NullUUID
	)
	err := row.Scan(
		&p.ID, &p.Gateway, &p.Token, &p.IsActive, &p.ToConfirm,
		&p.ChargeStatus, &p.Authorized, &p.Total, &p.CapturedAmount, &p.Currency,
		&p.CustomerEmail, &checkoutToken, &orderID, &p.PSPReference, &p.ReturnURL,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if checkoutToken.Valid {
		p.CheckoutToken = &checkoutToken.UUID
	}
	if orderID.Valid {
		p.OrderID = &orderID.UUID
	}
	return &p, nil
}

func (r *repository) GetLastActiveForCheckout(ctx context.Context, checkoutToken uuid.UUID) (*Payment, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Payment"),
		zap.String("method", "GetLastActiveForCheckout"),
	)

	q := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE checkout_token = $1 AND order_id IS NULL AND is_active = true
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, q, checkoutToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (r *repository) GetByPSPReference(ctx context.Context, gateway, pspReference string) (*Payment, error) {
	q := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway = $1 AND psp_reference = $2
		ORDER BY id DESC
		LIMIT 1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, q, gateway, pspReference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, p *Payment) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Payment"),
		zap.String("method", "Create"),
	)

	p.IsActive = true
	if p.ChargeStatus == "" {
		p.ChargeStatus = ChargeNotCharged
	}

	err := db.RunInTx(ctx, r.db, func(tx *db.Tx) error {
		if p.CheckoutToken != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE payments SET is_active = false, updated_at = now()
				WHERE checkout_token = $1 AND order_id IS NULL AND is_active = true
			`, *p.CheckoutToken); err != nil {
				return err
			}
		}

		const q = `
			INSERT INTO payments (
				gateway, token, is_active, to_confirm, charge_status,
				total, currency, customer_email, checkout_token, return_url
			)
			VALUES ($1, $2, true, false, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at
		`
		return tx.QueryRowContext(ctx, q,
			p.Gateway, p.Token, p.ChargeStatus,
			p.Total, p.Currency, p.CustomerEmail, p.CheckoutToken, p.ReturnURL,
		).Scan(&p.ID, &p.CreatedAt)
	})
	if err != nil {
		log.Error("create payment failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) Update(ctx context.Context, p *Payment) error {
	const q = `
		UPDATE payments SET
			is_active = $2,
			to_confirm = $3,
			charge_status = $4,
			authorized = $5,
			captured_amount = $6,
			psp_reference = $7,
			updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.IsActive, p.ToConfirm, p.ChargeStatus, p.Authorized, p.CapturedAmount, p.PSPReference,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("update payment failed", zap.Int64("payment_id", p.ID), zap.Error(err))
	}
	return err
}

func (r *repository) SaveTransaction(ctx context.Context, t *Transaction) error {
	actionData, err := json.Marshal(t.ActionRequiredData)
	if err != nil {
		return err
	}
	gatewayResponse := t.GatewayResponse
	if len(gatewayResponse) == 0 {
		gatewayResponse = json.RawMessage(`{}`)
	}

	const q = `
		INSERT INTO payment_transactions (
			payment_id, kind, is_success, action_required, action_required_data,
			amount, currency, error, customer_id, psp_reference, gateway_response
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	return r.db.QueryRowContext(ctx, q,
		t.PaymentID, t.Kind, t.IsSuccess, t.ActionRequired, actionData,
		t.Amount, t.Currency, t.Error, t.CustomerID, t.PSPReference, []byte(gatewayResponse),
	).Scan(&t.ID, &t.CreatedAt)
}

func (r *repository) AssignToOrder(ctx context.Context, q db.Querier, checkoutToken, orderID uuid.UUID) error {
	const query = `
		UPDATE payments
		SET order_id = $1, updated_at = now()
		WHERE checkout_token = $2
	`
	_, err := q.ExecContext(ctx, query, orderID, checkoutToken)
	return err
}

func (r *repository) CapturedTotalForOrder(ctx context.Context, q db.Querier, orderID uuid.UUID) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(captured_amount), 0)
		FROM payments
		WHERE order_id = $1
	`
	var total decimal.Decimal
	err := q.QueryRowContext(ctx, query, orderID).Scan(&total)
	return total, err
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		eventType,
		externalID,
		signatureValid,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		// Duplicate webhook → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
