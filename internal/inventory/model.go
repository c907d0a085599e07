package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrAllocationMismatch = errors.New("stock changed between validation and allocation")

// Request asks for Quantity units of a variant.
type Request struct {
	VariantID int64
	Quantity  int
}

// Allocation ties a requested quantity to the order line that consumes it.
type Allocation struct {
	OrderLineID uuid.UUID
	VariantID   int64
	Quantity    int
}

// Stock is one warehouse row for a variant.
type Stock struct {
	ID                int64
	WarehouseID       int64
	VariantID         int64
	Quantity          int
	QuantityAllocated int
}

func (s Stock) Available() int {
	if avail := s.Quantity - s.QuantityAllocated; avail > 0 {
		return avail
	}
	return 0
}

type InsufficientStockItem struct {
	VariantID int64
	Requested int
	Available int
}

// InsufficientStockError lists every variant that cannot be covered.
type InsufficientStockError struct {
	Items []InsufficientStockItem
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("variant %d (requested %d, available %d)", it.VariantID, it.Requested, it.Available))
	}
	return "insufficient stock for " + strings.Join(parts, ", ")
}

// aggregate sums requests per variant, keeping first-seen order.
func aggregate(reqs []Request) ([]int64, map[int64]int) {
	var ids []int64
	totals := make(map[int64]int, len(reqs))
	for _, r := range reqs {
		if _, seen := totals[r.VariantID]; !seen {
			ids = append(ids, r.VariantID)
		}
		totals[r.VariantID] += r.Quantity
	}
	return ids, totals
}
