package inventory

import (
	"context"
	"database/sql"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// AvailableQuantities sums free stock per variant across warehouses
	// that ship to country within channel.
	AvailableQuantities(ctx context.Context, variantIDs []int64, country, channel string) (map[int64]int, error)
	// LockStocks row-locks the same stock rows inside q, ordered by id.
	LockStocks(ctx context.Context, q db.Querier, variantIDs []int64, country, channel string) ([]Stock, error)
	Allocate(ctx context.Context, q db.Querier, stockID int64, orderLineID uuid.UUID, quantity int) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const eligibleStocks = `
	FROM stocks s
	JOIN warehouses w ON w.id = s.warehouse_id
	JOIN warehouse_shipping_zones wz ON wz.warehouse_id = w.id
	JOIN shipping_zones z ON z.id = wz.shipping_zone_id
	JOIN shipping_zone_channels zc ON zc.shipping_zone_id = z.id
	JOIN channels c ON c.id = zc.channel_id
	WHERE s.variant_id = ANY($1)
	  AND $2 = ANY(z.countries)
	  AND c.slug = $3
`

// A warehouse can reach a country through several zones, so the join above
// yields a stock row once per route. Callers select from stocks by id.
const eligibleStockIDs = `SELECT s.id ` + eligibleStocks

func (r *repository) AvailableQuantities(ctx context.Context, variantIDs []int64, country, channel string) (map[int64]int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Inventory"),
		zap.String("method", "AvailableQuantities"),
	)

	q := `
		SELECT st.variant_id, COALESCE(SUM(GREATEST(st.quantity - st.quantity_allocated, 0)), 0)
		FROM stocks st
		WHERE st.id IN (` + eligibleStockIDs + `)
		GROUP BY st.variant_id
	`

	rows, err := r.db.QueryContext(ctx, q, pq.Array(variantIDs), country, channel)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int, len(variantIDs))
	for rows.Next() {
		var (
			variantID int64
			available int
		)
		if err := rows.Scan(&variantID, &available); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		out[variantID] = available
	}
	return out, rows.Err()
}

func (r *repository) LockStocks(ctx context.Context, q db.Querier, variantIDs []int64, country, channel string) ([]Stock, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Inventory"),
		zap.String("method", "LockStocks"),
	)

	query := `
		SELECT st.id, st.warehouse_id, st.variant_id, st.quantity, st.quantity_allocated
		FROM stocks st
		WHERE st.id IN (` + eligibleStockIDs + `)
		ORDER BY st.id
		FOR UPDATE
	`

	rows, err := q.QueryContext(ctx, query, pq.Array(variantIDs), country, channel)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ID, &s.WarehouseID, &s.VariantID, &s.Quantity, &s.QuantityAllocated); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func (r *repository) Allocate(ctx context.Context, q db.Querier, stockID int64, orderLineID uuid.UUID, quantity int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Inventory"),
		zap.String("method", "Allocate"),
		zap.Int64("stock_id", stockID),
		zap.Int("quantity", quantity),
	)

	const bump = `
		UPDATE stocks
		SET quantity_allocated = quantity_allocated + $1
		WHERE id = $2 AND quantity - quantity_allocated >= $1
	`
	res, err := q.ExecContext(ctx, bump, quantity, stockID)
	if err != nil {
		log.Error("update stock failed", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Error("stock row no longer covers allocation")
		return ErrAllocationMismatch
	}

	const insert = `
		INSERT INTO allocations (order_line_id, stock_id, quantity_allocated)
		VALUES ($1, $2, $3)
	`
	if _, err := q.ExecContext(ctx, insert, orderLineID, stockID, quantity); err != nil {
		log.Error("insert allocation failed", zap.Error(err))
		return err
	}
	return nil
}
