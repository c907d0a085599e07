package complete

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SagaState string

const (
	SagaReserved     SagaState = "reserved"
	SagaPaid         SagaState = "paid"
	SagaCompensating SagaState = "compensating"
	SagaCompensated  SagaState = "compensated"
	SagaCompleted    SagaState = "completed"
)

// Saga is the persisted progress of one completion attempt. A row left in
// paid or compensating points at a payment that may hold funds without an order.
type Saga struct {
	CheckoutToken      uuid.UUID
	State              SagaState
	PaymentID          *int64
	OrderID            *uuid.UUID
	VoucherCode        string
	VoucherPerCustomer bool
	VoucherReleased    bool
	// VoucherOwner is the attempt whose Apply counted the current use.
	VoucherOwner       *uuid.UUID
	CustomerEmail      string
	LastError          string
	UpdatedAt          time.Time
}

// Pending reports whether an earlier attempt stopped before finishing,
// typically waiting on a customer action at the gateway.
func (s *Saga) Pending() bool {
	return s != nil && (s.State == SagaReserved || s.State == SagaPaid)
}

type SagaRepository interface {
	// Get returns nil, nil when no attempt was recorded for token.
	Get(ctx context.Context, token uuid.UUID) (*Saga, error)
	Save(ctx context.Context, s *Saga) error
	// Claim takes the completion lease on token for attempt. It reports false
	// while another attempt holds a lease that has not expired.
	Claim(ctx context.Context, token, attempt uuid.UUID, ttl time.Duration) (bool, error)
	// Unclaim drops the lease if attempt still holds it.
	Unclaim(ctx context.Context, token, attempt uuid.UUID) error
	// ListStuck returns sagas in paid or compensating not touched since before.
	ListStuck(ctx context.Context, before time.Time) ([]Saga, error)
}

type sagaRepository struct {
	db *sql.DB
}

func NewSagaRepository(db *sql.DB) SagaRepository {
	return &sagaRepository{db: db}
}

const sagaColumns = `
	checkout_token, state, payment_id, order_id,
	voucher_code, voucher_per_customer, voucher_released, voucher_owner,
	customer_email, last_error, updated_at
`

func scanSaga(row interface{ Scan(dest ...any) error }) (*Saga, error) {
	var (
		s         Saga
		paymentID sql.NullInt64
		orderID   uuid.NullUUID
		owner     uuid.NullUUID
	)
	err := row.Scan(
		&s.CheckoutToken, &s.State, &paymentID, &orderID,
		&s.VoucherCode, &s.VoucherPerCustomer, &s.VoucherReleased, &owner,
		&s.CustomerEmail, &s.LastError, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		s.PaymentID = &paymentID.Int64
	}
	if orderID.Valid {
		s.OrderID = &orderID.UUID
	}
	if owner.Valid {
		s.VoucherOwner = &owner.UUID
	}
	return &s, nil
}

func (r *sagaRepository) Get(ctx context.Context, token uuid.UUID) (*Saga, error) {
	query := `SELECT ` + sagaColumns + ` FROM checkout_sagas WHERE checkout_token = $1`

	s, err := scanSaga(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("get saga failed", zap.Error(err))
		return nil, err
	}
	return s, nil
}

// Save upserts the attempt's progress. A row already completed is left as is.
func (r *sagaRepository) Save(ctx context.Context, s *Saga) error {
	const query = `
		INSERT INTO checkout_sagas (
			checkout_token, state, payment_id, order_id,
			voucher_code, voucher_per_customer, voucher_released, voucher_owner,
			customer_email, last_error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (checkout_token) DO UPDATE SET
			state = EXCLUDED.state,
			payment_id = EXCLUDED.payment_id,
			order_id = EXCLUDED.order_id,
			voucher_code = EXCLUDED.voucher_code,
			voucher_per_customer = EXCLUDED.voucher_per_customer,
			voucher_released = EXCLUDED.voucher_released,
			voucher_owner = EXCLUDED.voucher_owner,
			customer_email = EXCLUDED.customer_email,
			last_error = EXCLUDED.last_error,
			updated_at = now()
		WHERE checkout_sagas.state <> 'completed'
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		s.CheckoutToken, s.State, s.PaymentID, s.OrderID,
		s.VoucherCode, s.VoucherPerCustomer, s.VoucherReleased, s.VoucherOwner,
		s.CustomerEmail, s.LastError,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// completed is final
		return nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("save saga failed",
			zap.String("state", string(s.State)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *sagaRepository) Claim(ctx context.Context, token, attempt uuid.UUID, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO checkout_claims (checkout_token, attempt_id, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (checkout_token) DO UPDATE SET
			attempt_id = EXCLUDED.attempt_id,
			expires_at = EXCLUDED.expires_at
		WHERE checkout_claims.expires_at < now()
		RETURNING attempt_id
	`

	var holder uuid.UUID
	err := r.db.QueryRowContext(ctx, query, token, attempt, ttl.Seconds()).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("claim checkout failed", zap.Error(err))
		return false, err
	}
	return holder == attempt, nil
}

func (r *sagaRepository) Unclaim(ctx context.Context, token, attempt uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM checkout_claims WHERE checkout_token = $1 AND attempt_id = $2`,
		token, attempt,
	)
	return err
}

func (r *sagaRepository) ListStuck(ctx context.Context, before time.Time) ([]Saga, error) {
	query := `
		SELECT ` + sagaColumns + `
		FROM checkout_sagas
		WHERE state IN ('paid', 'compensating') AND updated_at < $1
		ORDER BY updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		logger.FromCtx(ctx).Error("list stuck sagas failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var sagas []Saga
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, *s)
	}
	return sagas, rows.Err()
}
