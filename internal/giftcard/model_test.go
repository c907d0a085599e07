package giftcard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func TestValidateActive(t *testing.T) {
	today := *day("2026-03-10")

	assert.NoError(t, ValidateActive([]GiftCard{
		{ID: 1, IsActive: true},
		{ID: 2, IsActive: true, ExpiryDate: day("2026-03-10")},
	}, today))

	assert.ErrorIs(t, ValidateActive([]GiftCard{{ID: 3, IsActive: true, ExpiryDate: day("2026-03-09")}}, today), ErrGiftCardInactive)
	assert.ErrorIs(t, ValidateActive([]GiftCard{{ID: 4, IsActive: false}}, today), ErrGiftCardInactive)
}

func TestSortForConsumption(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cards := []GiftCard{
		{ID: 1, CreatedAt: created},
		{ID: 2, ExpiryDate: day("2026-12-01"), CreatedAt: created},
		{ID: 3, ExpiryDate: day("2026-06-01"), CreatedAt: created.Add(time.Hour)},
		{ID: 4, ExpiryDate: day("2026-06-01"), CreatedAt: created},
		{ID: 5, CreatedAt: created.Add(-time.Hour)},
	}

	SortForConsumption(cards)

	var ids []int64
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{4, 3, 2, 5, 1}, ids)
}

func TestPlan(t *testing.T) {
	cards := []GiftCard{
		{ID: 1, CurrentBalance: decimal.NewFromInt(50)},
		{ID: 2, CurrentBalance: decimal.NewFromInt(30), ExpiryDate: day("2026-05-01")},
	}

	t.Run("partial cover", func(t *testing.T) {
		plan := Plan(cards, decimal.RequireFromString("40.00"), "USD")
		require.Len(t, plan, 2)
		assert.Equal(t, int64(2), plan[0].Card.ID)
		assert.True(t, decimal.NewFromInt(30).Equal(plan[0].Amount))
		assert.True(t, decimal.NewFromInt(10).Equal(plan[1].Amount))
	})

	t.Run("nothing left to pay", func(t *testing.T) {
		plan := Plan(cards, decimal.Zero, "USD")
		for _, c := range plan {
			assert.True(t, c.Amount.IsZero())
		}
	})

	t.Run("balances exceed total", func(t *testing.T) {
		plan := Plan(cards, decimal.NewFromInt(100), "USD")
		assert.True(t, decimal.NewFromInt(80).Equal(plan[0].Amount.Add(plan[1].Amount)))
	})

	assert.True(t, decimal.NewFromInt(80).Equal(TotalBalance(cards)))
}
