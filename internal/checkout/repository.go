package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	GetByToken(ctx context.Context, token uuid.UUID) (*Checkout, error)
	GetLines(ctx context.Context, token uuid.UUID) ([]Line, error)
	UpdateRedirectAndTracking(ctx context.Context, token uuid.UUID, redirectURL, trackingCode string) error

	// LockForCompletion row-locks the checkout inside q. It reports false
	// when the checkout no longer exists.
	LockForCompletion(ctx context.Context, q db.Querier, token uuid.UUID) (bool, error)
	Delete(ctx context.Context, q db.Querier, token uuid.UUID) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByToken(ctx context.Context, token uuid.UUID) (*Checkout, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Checkout"),
		zap.String("method", "GetByToken"),
	)

	const q = `
		SELECT
			c.token, c.created_at, c.updated_at,
			c.user_id, c.email,
			ch.slug, ch.is_active, c.currency, c.country, c.language_code,
			c.billing_address_id, c.shipping_address_id,
			sm.id, sm.name, sm.price,
			c.voucher_code, c.discount, c.discount_name, c.translated_discount_name,
			c.order_type, c.note, c.tracking_code, c.redirect_url,
			c.metadata, c.private_metadata
		FROM checkouts c
		JOIN channels ch ON ch.id = c.channel_id
		LEFT JOIN shipping_methods sm ON sm.id = c.shipping_method_id
		WHERE c.token = $1
	`

	var (
		c               Checkout
		userID          sql.NullInt64
		billingID       uuid.NullUUID
		shippingID      uuid.NullUUID
		methodID        sql.NullInt64
		methodName      sql.NullString
		methodPrice     decimal.NullDecimal
		metadata        []byte
		privateMetadata []byte
	)

	err := r.db.QueryRowContext(ctx, q, token).Scan(
		&c.Token, &c.CreatedAt, &c.UpdatedAt,
		&userID, &c.Email,
		&c.ChannelSlug, &c.ChannelActive, &c.Currency, &c.Country, &c.LanguageCode,
		&billingID, &shippingID,
		&methodID, &methodName, &methodPrice,
		&c.VoucherCode, &c.Discount, &c.DiscountName, &c.TranslatedDiscountName,
		&c.OrderType, &c.Note, &c.TrackingCode, &c.RedirectURL,
		&metadata, &privateMetadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}

	if userID.Valid {
		uid := uint(userID.Int64)
		c.UserID = &uid
	}
	if billingID.Valid {
		c.BillingAddressID = &billingID.UUID
	}
	if shippingID.Valid {
		c.ShippingAddressID = &shippingID.UUID
	}
	if methodID.Valid {
		c.ShippingMethod = &ShippingMethod{
			ID:    methodID.Int64,
			Name:  methodName.String,
			Price: methodPrice.Decimal,
		}
	}
	if c.Metadata, err = decodeMetadata(metadata); err != nil {
		log.Error("decode metadata failed", zap.Error(err))
		return nil, err
	}
	if c.PrivateMetadata, err = decodeMetadata(privateMetadata); err != nil {
		log.Error("decode private metadata failed", zap.Error(err))
		return nil, err
	}

	return &c, nil
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) GetLines(ctx context.Context, token uuid.UUID) ([]Line, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Checkout"),
		zap.String("method", "GetLines"),
	)

	const q = `
		SELECT
			l.id, l.quantity, l.option_value_ids,
			v.id, v.sku, v.name,
			p.id, p.name, COALESCE(vcl.price, 0), p.is_shipping_required
		FROM checkout_lines l
		JOIN checkouts c ON c.token = l.checkout_token
		JOIN product_variants v ON v.id = l.variant_id
		JOIN products p ON p.id = v.product_id
		LEFT JOIN variant_channel_listings vcl
			ON vcl.variant_id = v.id AND vcl.channel_id = c.channel_id
		WHERE l.checkout_token = $1
		ORDER BY l.created_at, l.id
	`

	rows, err := r.db.QueryContext(ctx, q, token)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l         Line
			optionIDs pq.Int64Array
		)
		if err := rows.Scan(
			&l.ID, &l.Quantity, &optionIDs,
			&l.Variant.ID, &l.Variant.SKU, &l.Variant.Name,
			&l.Variant.ProductID, &l.Variant.ProductName, &l.Variant.Price, &l.Variant.IsShippingRequired,
		); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		l.OptionValueIDs = []int64(optionIDs)
		lines = append(lines, l)
	}

	return lines, rows.Err()
}

func (r *repository) UpdateRedirectAndTracking(ctx context.Context, token uuid.UUID, redirectURL, trackingCode string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Checkout"),
		zap.String("method", "UpdateRedirectAndTracking"),
	)

	const q = `
		UPDATE checkouts
		SET redirect_url = $2, tracking_code = $3, updated_at = NOW()
		WHERE token = $1
	`

	if _, err := r.db.ExecContext(ctx, q, token, redirectURL, trackingCode); err != nil {
		log.Error("update failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) LockForCompletion(ctx context.Context, q db.Querier, token uuid.UUID) (bool, error) {
	var locked uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT token FROM checkouts WHERE token = $1 FOR UPDATE`, token).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("lock checkout failed", zap.Error(err))
		return false, err
	}
	return true, nil
}

func (r *repository) Delete(ctx context.Context, q db.Querier, token uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM checkouts WHERE token = $1`, token); err != nil {
		logger.FromCtx(ctx).Error("delete checkout failed", zap.Error(err))
		return err
	}
	return nil
}
