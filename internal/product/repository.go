package product

import (
	"context"
	"database/sql"

	"warimas-checkout/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the read-only catalog view used when an order is assembled.
type Repository interface {
	ProductTranslations(ctx context.Context, productIDs []int64, languageCode string) (Translations, error)
	VariantTranslations(ctx context.Context, variantIDs []int64, languageCode string) (Translations, error)
	OptionValues(ctx context.Context, ids []int64, channelSlug string) (map[int64]OptionValue, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ProductTranslations(ctx context.Context, productIDs []int64, languageCode string) (Translations, error) {
	const q = `
		SELECT product_id, name
		FROM product_translations
		WHERE product_id = ANY($1) AND language_code = $2
	`
	return r.translations(ctx, "ProductTranslations", q, productIDs, languageCode)
}

func (r *repository) VariantTranslations(ctx context.Context, variantIDs []int64, languageCode string) (Translations, error) {
	const q = `
		SELECT variant_id, name
		FROM variant_translations
		WHERE variant_id = ANY($1) AND language_code = $2
	`
	return r.translations(ctx, "VariantTranslations", q, variantIDs, languageCode)
}

func (r *repository) translations(ctx context.Context, method, q string, ids []int64, languageCode string) (Translations, error) {
	out := Translations{}
	if len(ids) == 0 || languageCode == "" {
		return out, nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Product"),
		zap.String("method", method),
		zap.String("language_code", languageCode),
	)

	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids), languageCode)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (r *repository) OptionValues(ctx context.Context, ids []int64, channelSlug string) (map[int64]OptionValue, error) {
	out := make(map[int64]OptionValue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Product"),
		zap.String("method", "OptionValues"),
		zap.String("channel", channelSlug),
	)

	const q = `
		SELECT ov.id, ov.name, o.type, COALESCE(ocl.price, 0), c.currency_code
		FROM option_values ov
		JOIN options o ON o.id = ov.option_id
		JOIN channels c ON c.slug = $2
		LEFT JOIN option_value_channel_listings ocl
			ON ocl.option_value_id = ov.id AND ocl.channel_id = c.id
		WHERE ov.id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids), channelSlug)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ov OptionValue
		if err := rows.Scan(&ov.ID, &ov.Name, &ov.Type, &ov.Price, &ov.Currency); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		out[ov.ID] = ov
	}
	return out, rows.Err()
}
