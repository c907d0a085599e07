package address

import (
	"context"
	"database/sql"
	"errors"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrAddressNotFound = errors.New("address not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Address, error)

	// CopyForOrder persists an ownerless snapshot of a and returns it.
	CopyForOrder(ctx context.Context, q db.Querier, a *Address) (*Address, error)
	// StoreForUser adds a to the user's address book unless an identical entry exists.
	StoreForUser(ctx context.Context, q db.Querier, userID uint, a *Address) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Address, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Address"),
		zap.String("method", "GetByID"),
		zap.String("address_id", id.String()),
	)

	const q = `
		SELECT
			id, user_id,
			name, receiver_name, phone,
			address_line1, address_line2,
			city, province, postal_code, country,
			is_default, is_active
		FROM addresses
		WHERE id = $1
	`

	var (
		a      Address
		userID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &userID,
		&a.Name, &a.ReceiverName, &a.Phone,
		&a.Address1, &a.Address2,
		&a.City, &a.Province, &a.Postal, &a.Country,
		&a.IsDefault, &a.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}

	if userID.Valid {
		uid := uint(userID.Int64)
		a.UserID = &uid
	}
	return &a, nil
}

func (r *repository) CopyForOrder(ctx context.Context, q db.Querier, a *Address) (*Address, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Address"),
		zap.String("method", "CopyForOrder"),
	)

	snap := a.Snapshot()

	const query = `
		INSERT INTO addresses (
			id, user_id, name, receiver_name, phone,
			address_line1, address_line2,
			city, province, postal_code, country,
			is_default, is_active
		) VALUES ($1, NULL, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, true)
	`

	if _, err := q.ExecContext(ctx, query,
		snap.ID, snap.Name, snap.ReceiverName, snap.Phone,
		snap.Address1, snap.Address2,
		snap.City, snap.Province, snap.Postal, snap.Country,
	); err != nil {
		log.Error("insert snapshot failed", zap.Error(err))
		return nil, err
	}

	return snap, nil
}

func (r *repository) StoreForUser(ctx context.Context, q db.Querier, userID uint, a *Address) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Address"),
		zap.String("method", "StoreForUser"),
		zap.Uint("user_id", userID),
	)

	const query = `
		INSERT INTO addresses (
			id, user_id, name, receiver_name, phone,
			address_line1, address_line2,
			city, province, postal_code, country,
			is_default, is_active
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, true
		WHERE NOT EXISTS (
			SELECT 1 FROM addresses
			WHERE user_id = $2
			  AND is_active = true
			  AND name = $3
			  AND phone = $5
			  AND address_line1 = $6
			  AND address_line2 IS NOT DISTINCT FROM $7
			  AND city = $8
			  AND postal_code = $10
			  AND country = $11
		)
	`

	if _, err := q.ExecContext(ctx, query,
		uuid.New(), userID, a.Name, a.ReceiverName, a.Phone,
		a.Address1, a.Address2,
		a.City, a.Province, a.Postal, a.Country,
	); err != nil {
		log.Error("store address failed", zap.Error(err))
		return err
	}
	return nil
}
