package pricing

import (
	"warimas-checkout/internal/payment"

	"github.com/shopspring/decimal"
)

// MinimumOrder returns the minimum undiscounted total for a delivery to postal.
func (d *DeliverySettings) MinimumOrder(postal string) decimal.Decimal {
	if d.EnableMinimumDeliveryOrderValue {
		if band, ok := ResolveDeliveryBand(d.Areas, postal); ok && band.CustomMinOrder != nil {
			return *band.CustomMinOrder
		}
	}
	return d.MinOrder
}

// Fee returns the delivery fee for postal, before the big-order waiver.
func (d *DeliverySettings) Fee(postal string) decimal.Decimal {
	if d.EnableCustomDeliveryFee {
		if band, ok := ResolveDeliveryBand(d.Areas, postal); ok {
			return band.CustomDeliveryFee
		}
	}
	return d.DeliveryFee
}

// Charged reports whether the delivery fee applies to an order of undiscounted value.
func (d *DeliverySettings) Charged(undiscounted decimal.Decimal) bool {
	return undiscounted.LessThan(d.FromDelivery) || !d.EnableForBigOrder
}

// TransactionFee is the flat per-gateway surcharge, zero when disabled.
func TransactionFee(store StoreSettings, gateway string) decimal.Decimal {
	if !store.EnableTransactionFee {
		return decimal.Zero
	}
	switch gateway {
	case payment.GatewayDummy:
		if store.CashEnabled {
			return store.CashCost
		}
	case payment.GatewayStripe, payment.GatewayXendit:
		if store.CardEnabled {
			return store.CardCost
		}
	}
	return decimal.Zero
}
