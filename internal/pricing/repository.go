package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

// SettingsRepository reads fee configuration. It is loaded for every
// completion so admin changes apply immediately.
type SettingsRepository interface {
	Load(ctx context.Context) (Settings, error)
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Load(ctx context.Context) (Settings, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Settings"),
		zap.String("method", "Load"),
	)

	var s Settings

	delivery, err := r.loadDelivery(ctx)
	if err != nil {
		log.Error("load delivery settings failed", zap.Error(err))
		return Settings{}, err
	}
	s.Delivery = delivery

	const storeQ = `
		SELECT enable_transaction_fee, cash_enabled, cash_cost, card_enabled, card_cost,
		       automatically_confirm_all_new_orders
		FROM store_settings
		ORDER BY id
		LIMIT 1
	`
	err = r.db.QueryRowContext(ctx, storeQ).Scan(
		&s.Store.EnableTransactionFee,
		&s.Store.CashEnabled, &s.Store.CashCost,
		&s.Store.CardEnabled, &s.Store.CardCost,
		&s.Store.AutomaticallyConfirmOrders,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Error("load store settings failed", zap.Error(err))
		return Settings{}, err
	}

	return s, nil
}

func (r *settingsRepository) loadDelivery(ctx context.Context) (*DeliverySettings, error) {
	const q = `
		SELECT delivery_fee, from_delivery, min_order,
		       enable_for_big_order, enable_custom_delivery_fee, enable_minimum_delivery_order_value,
		       delivery_area
		FROM delivery_settings
		ORDER BY id
		LIMIT 1
	`

	var (
		d     DeliverySettings
		areas []byte
	)
	err := r.db.QueryRowContext(ctx, q).Scan(
		&d.DeliveryFee, &d.FromDelivery, &d.MinOrder,
		&d.EnableForBigOrder, &d.EnableCustomDeliveryFee, &d.EnableMinimumDeliveryOrderValue,
		&areas,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(areas) > 0 {
		var doc struct {
			Areas []DeliveryArea `json:"areas"`
		}
		if err := json.Unmarshal(areas, &doc); err != nil {
			return nil, err
		}
		d.Areas = doc.Areas
	}
	return &d, nil
}
