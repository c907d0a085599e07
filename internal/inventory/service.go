package inventory

import (
	"context"
	"fmt"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckStockBulk validates the whole request set with a single query. It
// either accepts every request or returns an *InsufficientStockError naming
// all short variants.
func (s *Service) CheckStockBulk(ctx context.Context, reqs []Request, country, channel string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CheckStockBulk"),
		zap.String("country", country),
		zap.String("channel", channel),
	)

	ids, totals := aggregate(reqs)
	if len(ids) == 0 {
		return nil
	}

	available, err := s.repo.AvailableQuantities(ctx, ids, country, channel)
	if err != nil {
		return fmt.Errorf("check stock: %w", err)
	}

	var short []InsufficientStockItem
	for _, id := range ids {
		if avail := available[id]; avail < totals[id] {
			short = append(short, InsufficientStockItem{VariantID: id, Requested: totals[id], Available: avail})
		}
	}
	if len(short) > 0 {
		log.Info("insufficient stock", zap.Int("variants", len(short)))
		return &InsufficientStockError{Items: short}
	}
	return nil
}

// AllocateStocks reserves stock for every allocation inside q. Stock rows are
// locked first and the set is verified before any row is written, so a
// shortfall never leaves a partial allocation behind.
func (s *Service) AllocateStocks(ctx context.Context, q db.Querier, allocs []Allocation, country, channel string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AllocateStocks"),
	)

	reqs := make([]Request, 0, len(allocs))
	for _, a := range allocs {
		reqs = append(reqs, Request{VariantID: a.VariantID, Quantity: a.Quantity})
	}
	ids, totals := aggregate(reqs)
	if len(ids) == 0 {
		return nil
	}

	// 1. Lock
	stocks, err := s.repo.LockStocks(ctx, q, ids, country, channel)
	if err != nil {
		return fmt.Errorf("lock stocks: %w", err)
	}

	byVariant := make(map[int64][]*Stock, len(ids))
	free := make(map[int64]int, len(ids))
	for i := range stocks {
		st := &stocks[i]
		byVariant[st.VariantID] = append(byVariant[st.VariantID], st)
		free[st.VariantID] += st.Available()
	}

	// 2. Verify under lock
	var short []InsufficientStockItem
	for _, id := range ids {
		if free[id] < totals[id] {
			short = append(short, InsufficientStockItem{VariantID: id, Requested: totals[id], Available: free[id]})
		}
	}
	if len(short) > 0 {
		log.Error("stock shortfall under lock", zap.Int("variants", len(short)))
		return fmt.Errorf("%w: %w", ErrAllocationMismatch, &InsufficientStockError{Items: short})
	}

	// 3. Greedy allocation across warehouses
	for _, a := range allocs {
		remaining := a.Quantity
		for _, st := range byVariant[a.VariantID] {
			if remaining == 0 {
				break
			}
			take := min(st.Available(), remaining)
			if take == 0 {
				continue
			}
			if err := s.repo.Allocate(ctx, q, st.ID, a.OrderLineID, take); err != nil {
				return fmt.Errorf("allocate stock %d: %w", st.ID, err)
			}
			st.QuantityAllocated += take
			remaining -= take
		}
	}

	return nil
}
