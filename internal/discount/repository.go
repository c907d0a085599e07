package discount

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	// GetActiveByCodeForUpdate returns nil, nil when no voucher with code is
	// active at now.
	GetActiveByCodeForUpdate(ctx context.Context, q db.Querier, code string, now time.Time) (*Voucher, error)
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	CustomerHasUsed(ctx context.Context, q db.Querier, voucherID int64, email string) (bool, error)
	IncreaseUsage(ctx context.Context, q db.Querier, voucherID int64) error
	DecreaseUsage(ctx context.Context, q db.Querier, voucherID int64) error
	AddCustomer(ctx context.Context, q db.Querier, voucherID int64, email string) error
	RemoveCustomer(ctx context.Context, q db.Querier, voucherID int64, email string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const voucherColumns = `
	id, code, name, used, usage_limit, apply_once_per_customer,
	discount_value_type, discount_value, start_date, end_date
`

func scanVoucher(row *sql.Row) (*Voucher, error) {
	var (
		v     Voucher
		limit sql.NullInt64
	)
	err := row.Scan(
		&v.ID, &v.Code, &v.Name, &v.Used, &limit, &v.ApplyOncePerCustomer,
		&v.DiscountValueType, &v.DiscountValue, &v.StartDate, &v.EndDate,
	)
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		l := int(limit.Int64)
		v.UsageLimit = &l
	}
	return &v, nil
}

func (r *repository) GetActiveByCodeForUpdate(ctx context.Context, q db.Querier, code string, now time.Time) (*Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE code = $1
		  AND start_date <= $2
		  AND (end_date IS NULL OR end_date >= $2)
		FOR UPDATE
	`

	v, err := scanVoucher(q.QueryRowContext(ctx, query, code, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("lock voucher failed", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`

	v, err := scanVoucher(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("get voucher failed", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (r *repository) CustomerHasUsed(ctx context.Context, q db.Querier, voucherID int64, email string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM voucher_customers WHERE voucher_id = $1 AND customer_email = $2)`,
		voucherID, email,
	).Scan(&exists)
	return exists, err
}

func (r *repository) IncreaseUsage(ctx context.Context, q db.Querier, voucherID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE vouchers SET used = used + 1 WHERE id = $1`, voucherID)
	return err
}

func (r *repository) DecreaseUsage(ctx context.Context, q db.Querier, voucherID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE vouchers SET used = GREATEST(used - 1, 0) WHERE id = $1`, voucherID)
	return err
}

func (r *repository) AddCustomer(ctx context.Context, q db.Querier, voucherID int64, email string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO voucher_customers (voucher_id, customer_email) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		voucherID, email,
	)
	return err
}

func (r *repository) RemoveCustomer(ctx context.Context, q db.Querier, voucherID int64, email string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM voucher_customers WHERE voucher_id = $1 AND customer_email = $2`,
		voucherID, email,
	)
	return err
}
