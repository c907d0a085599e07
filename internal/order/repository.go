package order

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
	// GetByCheckoutToken returns nil, nil when no order references token.
	GetByCheckoutToken(ctx context.Context, token uuid.UUID) (*Order, error)
	// GetByCheckoutTokenForUpdate is GetByCheckoutToken with a row lock held in q.
	GetByCheckoutTokenForUpdate(ctx context.Context, q db.Querier, token uuid.UUID) (*Order, error)

	Insert(ctx context.Context, q db.Querier, o *Order) error
	InsertDiscount(ctx context.Context, q db.Querier, d *Discount) error
	InsertLines(ctx context.Context, q db.Querier, lines []Line) error
	UpdateTotalPaid(ctx context.Context, q db.Querier, orderID uuid.UUID, totalPaid decimal.Decimal) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, number, checkout_token, status, origin,
	user_id, user_email, channel_slug, currency, language_code,
	total_net, total_gross, undiscounted_total_net, undiscounted_total_gross,
	shipping_price_net, shipping_price_gross, total_paid,
	redirect_url, created_at
`

func scanOrder(row *sql.Row) (*Order, error) {
	var (
		o      Order
		userID sql.NullInt64
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CheckoutToken, &o.Status, &o.Origin,
		&userID, &o.UserEmail, &o.ChannelSlug, &o.Currency, &o.LanguageCode,
		&o.Total.Net, &o.Total.Gross, &o.Undiscounted.Net, &o.Undiscounted.Gross,
		&o.ShippingPrice.Net, &o.ShippingPrice.Gross, &o.TotalPaid,
		&o.RedirectURL, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint(userID.Int64)
		o.UserID = &uid
	}
	o.Total.Currency = o.Currency
	o.Undiscounted.Currency = o.Currency
	o.ShippingPrice.Currency = o.Currency
	return &o, nil
}

func (r *repository) GetByCheckoutToken(ctx context.Context, token uuid.UUID) (*Order, error) {
	return r.getByCheckoutToken(ctx, r.db, token, "")
}

func (r *repository) GetByCheckoutTokenForUpdate(ctx context.Context, q db.Querier, token uuid.UUID) (*Order, error) {
	return r.getByCheckoutToken(ctx, q, token, " FOR UPDATE")
}

func (r *repository) getByCheckoutToken(ctx context.Context, q db.Querier, token uuid.UUID, lock string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_token = $1` + lock

	o, err := scanOrder(q.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("get order by checkout token failed", zap.Error(err))
		return nil, err
	}
	return o, nil
}

func (r *repository) Insert(ctx context.Context, q db.Querier, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Order"),
		zap.String("method", "Insert"),
		zap.String("order_id", o.ID.String()),
	)

	metadata, err := json.Marshal(nonNil(o.Metadata))
	if err != nil {
		return err
	}
	privateMetadata, err := json.Marshal(nonNil(o.PrivateMetadata))
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO orders (
			id, number, checkout_token, status, origin,
			user_id, user_email, channel_slug, currency, language_code,
			billing_address_id, shipping_address_id,
			shipping_method_id, shipping_method_name,
			shipping_price_net, shipping_price_gross, shipping_tax_rate,
			total_net, total_gross, undiscounted_total_net, undiscounted_total_gross,
			total_paid, delivery_fee, transaction_cost,
			customer_note, tracking_code, redirect_url,
			metadata, private_metadata
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24,
			$25, $26, $27,
			$28, $29
		)
		RETURNING created_at
	`

	err = q.QueryRowContext(ctx, query,
		o.ID, o.Number, o.CheckoutToken, o.Status, o.Origin,
		o.UserID, o.UserEmail, o.ChannelSlug, o.Currency, o.LanguageCode,
		o.BillingAddressID, o.ShippingAddressID,
		o.ShippingMethodID, o.ShippingMethodName,
		o.ShippingPrice.Net, o.ShippingPrice.Gross, o.ShippingTaxRate,
		o.Total.Net, o.Total.Gross, o.Undiscounted.Net, o.Undiscounted.Gross,
		o.TotalPaid, o.DeliveryFee, o.TransactionCost,
		o.CustomerNote, o.TrackingCode, o.RedirectURL,
		metadata, privateMetadata,
	).Scan(&o.CreatedAt)
	if err != nil {
		log.Error("insert order failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) InsertDiscount(ctx context.Context, q db.Querier, d *Discount) error {
	const query = `
		INSERT INTO order_discounts (
			order_id, type, value_type, value, amount,
			currency, name, translated_name, voucher_code, voucher
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	voucher := d.Voucher
	if len(voucher) == 0 {
		voucher = json.RawMessage(`{}`)
	}

	err := q.QueryRowContext(ctx, query,
		d.OrderID, d.Type, d.ValueType, d.Value, d.Amount,
		d.Currency, d.Name, d.TranslatedName, d.VoucherCode, []byte(voucher),
	).Scan(&d.ID)
	if err != nil {
		logger.FromCtx(ctx).Error("insert order discount failed", zap.Error(err))
		return err
	}
	return nil
}

// InsertLines writes every line with its option snapshot and option links.
func (r *repository) InsertLines(ctx context.Context, q db.Querier, lines []Line) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Order"),
		zap.String("method", "InsertLines"),
	)

	const lineQuery = `
		INSERT INTO order_lines (
			id, order_id, variant_id,
			product_name, variant_name, translated_product_name, translated_variant_name,
			product_sku, is_shipping_required, quantity, currency,
			unit_price_net, unit_price_gross, total_price_net, total_price_gross,
			tax_rate, option_items
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	const optionQuery = `
		INSERT INTO order_line_option_values (order_line_id, option_value_id)
		SELECT $1, unnest($2::bigint[])
	`

	for _, l := range lines {
		options := l.Options
		if options == nil {
			options = []OptionSnapshot{}
		}
		items, err := json.Marshal(options)
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, lineQuery,
			l.ID, l.OrderID, l.VariantID,
			l.ProductName, l.VariantName, l.TranslatedProductName, l.TranslatedVariantName,
			l.SKU, l.IsShippingRequired, l.Quantity, l.Currency,
			l.UnitPrice.Net, l.UnitPrice.Gross, l.TotalPrice.Net, l.TotalPrice.Gross,
			l.TaxRate, items,
		); err != nil {
			log.Error("insert line failed", zap.Int64("variant_id", l.VariantID), zap.Error(err))
			return err
		}

		if len(l.Options) == 0 {
			continue
		}
		ids := make([]int64, 0, len(l.Options))
		for _, o := range l.Options {
			ids = append(ids, o.ID)
		}
		if _, err := q.ExecContext(ctx, optionQuery, l.ID, pq.Array(ids)); err != nil {
			log.Error("insert line options failed", zap.String("line_id", l.ID.String()), zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *repository) UpdateTotalPaid(ctx context.Context, q db.Querier, orderID uuid.UUID, totalPaid decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `UPDATE orders SET total_paid = $2, updated_at = now() WHERE id = $1`, orderID, totalPaid)
	return err
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
