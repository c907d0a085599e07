package user

import (
	"context"
	"database/sql"
	"errors"

	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

// Repository stores the customer id a payment gateway assigned to a user,
// so saved payment sources can be reused on later checkouts.
type Repository interface {
	GatewayCustomerID(ctx context.Context, userID uint, gateway string) (string, error)
	StoreGatewayCustomerID(ctx context.Context, userID uint, gateway, customerID string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// GatewayCustomerID returns "" when the user has no customer at gateway.
func (r *repository) GatewayCustomerID(ctx context.Context, userID uint, gateway string) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "User"),
		zap.String("method", "GatewayCustomerID"),
		zap.Uint("user_id", userID),
		zap.String("gateway", gateway),
	)

	const q = `
		SELECT customer_id
		FROM user_gateway_customers
		WHERE user_id = $1 AND gateway = $2
	`

	var customerID string
	err := r.db.QueryRowContext(ctx, q, userID, gateway).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return "", err
	}
	return customerID, nil
}

func (r *repository) StoreGatewayCustomerID(ctx context.Context, userID uint, gateway, customerID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "User"),
		zap.String("method", "StoreGatewayCustomerID"),
		zap.Uint("user_id", userID),
		zap.String("gateway", gateway),
	)

	const q = `
		INSERT INTO user_gateway_customers (user_id, gateway, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, gateway)
		DO UPDATE SET customer_id = EXCLUDED.customer_id, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, q, userID, gateway, customerID); err != nil {
		log.Error("upsert failed", zap.Error(err))
		return err
	}
	return nil
}
