package giftcard

import (
	"errors"
	"sort"
	"time"

	"warimas-checkout/internal/money"

	"github.com/shopspring/decimal"
)

var ErrGiftCardInactive = errors.New("gift card is expired or inactive")

type GiftCard struct {
	ID             int64
	Code           string
	CurrentBalance decimal.Decimal
	Currency       string
	ExpiryDate     *time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// IsUsable reports whether the card can pay on day `on`.
func (g GiftCard) IsUsable(on time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.ExpiryDate == nil {
		return true
	}
	return !truncateDay(g.ExpiryDate.UTC()).Before(truncateDay(on.UTC()))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateActive fails when any attached card is no longer usable.
func ValidateActive(cards []GiftCard, on time.Time) error {
	for _, c := range cards {
		if !c.IsUsable(on) {
			return ErrGiftCardInactive
		}
	}
	return nil
}

func TotalBalance(cards []GiftCard) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cards {
		total = total.Add(c.CurrentBalance)
	}
	return total
}

// SortForConsumption orders cards so the soonest-expiring balance is spent
// first: expiry ascending (no expiry last), then oldest created, then id.
func SortForConsumption(cards []GiftCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch {
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

type Consumption struct {
	Card   GiftCard
	Amount decimal.Decimal
}

// Plan spends remaining across cards in consumption order. Every card is
// listed, with a zero amount once remaining has been covered.
func Plan(cards []GiftCard, remaining decimal.Decimal, currency string) []Consumption {
	ordered := make([]GiftCard, len(cards))
	copy(ordered, cards)
	SortForConsumption(ordered)

	plan := make([]Consumption, 0, len(ordered))
	for _, card := range ordered {
		used := decimal.Min(card.CurrentBalance, money.FloorZero(remaining))
		used = money.Quantize(used, currency)
		remaining = remaining.Sub(used)
		plan = append(plan, Consumption{Card: card, Amount: used})
	}
	return plan
}
