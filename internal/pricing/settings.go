package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryArea is one postal-code band. CustomMinOrder is nil when the band
// does not override the global minimum order value.
type DeliveryArea struct {
	From              int
	To                int
	CustomDeliveryFee decimal.Decimal
	CustomMinOrder    *decimal.Decimal
}

// UnmarshalJSON reads the stored band shape, where customMinOrder may be
// a number, a numeric string, "" or null.
func (a *DeliveryArea) UnmarshalJSON(data []byte) error {
	var raw struct {
		From              int             `json:"from"`
		To                int             `json:"to"`
		CustomDeliveryFee decimal.Decimal `json:"customDeliveryFee"`
		CustomMinOrder    json.RawMessage `json:"customMinOrder"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.From = raw.From
	a.To = raw.To
	a.CustomDeliveryFee = raw.CustomDeliveryFee
	a.CustomMinOrder = nil

	v := strings.Trim(strings.TrimSpace(string(raw.CustomMinOrder)), `"`)
	if v == "" || v == "null" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return err
	}
	a.CustomMinOrder = &d
	return nil
}

type DeliverySettings struct {
	DeliveryFee                     decimal.Decimal
	FromDelivery                    decimal.Decimal
	MinOrder                        decimal.Decimal
	EnableForBigOrder               bool
	EnableCustomDeliveryFee         bool
	EnableMinimumDeliveryOrderValue bool
	Areas                           []DeliveryArea
}

type StoreSettings struct {
	EnableTransactionFee       bool
	CashEnabled                bool
	CashCost                   decimal.Decimal
	CardEnabled                bool
	CardCost                   decimal.Decimal
	AutomaticallyConfirmOrders bool
}

// Settings is the fee configuration in force for a single completion.
// Delivery is nil when the store has no delivery configuration.
type Settings struct {
	Delivery *DeliverySettings
	Store    StoreSettings
}
