package money

import "github.com/shopspring/decimal"

// TaxedMoney is a net/gross pair in a single currency.
type TaxedMoney struct {
	Net      decimal.Decimal `json:"net"`
	Gross    decimal.Decimal `json:"gross"`
	Currency string          `json:"currency"`
}

func Zero(currency string) TaxedMoney {
	return TaxedMoney{Net: decimal.Zero, Gross: decimal.Zero, Currency: currency}
}

// NewTaxed quantizes both sides.
func NewTaxed(net, gross decimal.Decimal, currency string) TaxedMoney {
	return TaxedMoney{
		Net:      Quantize(net, currency),
		Gross:    Quantize(gross, currency),
		Currency: currency,
	}
}

// Untaxed builds a TaxedMoney whose net and gross are the same amount.
func Untaxed(amount decimal.Decimal, currency string) TaxedMoney {
	return NewTaxed(amount, amount, currency)
}

func (t TaxedMoney) Add(o TaxedMoney) TaxedMoney {
	return NewTaxed(t.Net.Add(o.Net), t.Gross.Add(o.Gross), t.Currency)
}

// AddFlat adds an untaxed amount (a fee) to both net and gross.
func (t TaxedMoney) AddFlat(amount decimal.Decimal) TaxedMoney {
	return NewTaxed(t.Net.Add(amount), t.Gross.Add(amount), t.Currency)
}

// SubFlat subtracts amount from both sides, flooring each at zero.
func (t TaxedMoney) SubFlat(amount decimal.Decimal) TaxedMoney {
	return NewTaxed(FloorZero(t.Net.Sub(amount)), FloorZero(t.Gross.Sub(amount)), t.Currency)
}

func (t TaxedMoney) Mul(qty int64) TaxedMoney {
	q := decimal.NewFromInt(qty)
	return NewTaxed(t.Net.Mul(q), t.Gross.Mul(q), t.Currency)
}

// Div divides both sides by qty; qty <= 0 returns t unchanged.
func (t TaxedMoney) Div(qty int64) TaxedMoney {
	if qty <= 0 {
		return t
	}
	q := decimal.NewFromInt(qty)
	return NewTaxed(t.Net.Div(q), t.Gross.Div(q), t.Currency)
}

func (t TaxedMoney) Tax() decimal.Decimal {
	return t.Gross.Sub(t.Net)
}

// TaxRate returns tax/net, zero when net is zero.
func (t TaxedMoney) TaxRate() decimal.Decimal {
	if t.Net.IsZero() {
		return decimal.Zero
	}
	return t.Tax().Div(t.Net).Round(4)
}
