package pricing

import (
	"context"
	"fmt"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/money"

	"github.com/shopspring/decimal"
)

// Discount is a catalogue sale applied to the listed variants.
type Discount struct {
	Name       string
	VariantIDs []int64
	Percentage decimal.Decimal
}

func (d Discount) appliesTo(variantID int64) bool {
	for _, id := range d.VariantIDs {
		if id == variantID {
			return true
		}
	}
	return false
}

type OracleInput struct {
	Checkout  *checkout.Checkout
	Lines     []checkout.Line
	Address   *address.Address
	Discounts []Discount
}

// Oracle computes taxed prices. Implementations must be deterministic for a
// given input.
type Oracle interface {
	CheckoutTotal(ctx context.Context, in OracleInput) (money.TaxedMoney, error)
	CheckoutSubtotal(ctx context.Context, in OracleInput) (money.TaxedMoney, error)
	ShippingPrice(ctx context.Context, in OracleInput) (money.TaxedMoney, error)
	ShippingTaxRate(ctx context.Context, in OracleInput, shipping money.TaxedMoney) (decimal.Decimal, error)
	LineTotal(ctx context.Context, in OracleInput, line checkout.Line) (money.TaxedMoney, error)
	LineUnitPrice(ctx context.Context, in OracleInput, line checkout.Line, total money.TaxedMoney) (money.TaxedMoney, error)
	LineTaxRate(ctx context.Context, in OracleInput, line checkout.Line, unit money.TaxedMoney) (decimal.Decimal, error)
}

// FlatTaxOracle applies one tax rate to every line and to shipping.
type FlatTaxOracle struct {
	rate decimal.Decimal
}

func NewFlatTaxOracle(rate decimal.Decimal) *FlatTaxOracle {
	return &FlatTaxOracle{rate: rate}
}

func (o *FlatTaxOracle) taxed(net decimal.Decimal, currency string) money.TaxedMoney {
	return money.NewTaxed(net, net.Mul(decimal.NewFromInt(1).Add(o.rate)), currency)
}

func (o *FlatTaxOracle) LineTotal(_ context.Context, in OracleInput, line checkout.Line) (money.TaxedMoney, error) {
	if in.Checkout.Currency == "" {
		return money.TaxedMoney{}, fmt.Errorf("%w: checkout has no currency", ErrTaxComputation)
	}
	if line.Quantity <= 0 {
		return money.TaxedMoney{}, fmt.Errorf("%w: line %s has quantity %d", ErrTaxComputation, line.ID, line.Quantity)
	}

	net := line.Variant.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))

	best := decimal.Zero
	for _, d := range in.Discounts {
		if d.appliesTo(line.Variant.ID) && d.Percentage.GreaterThan(best) {
			best = d.Percentage
		}
	}
	if best.IsPositive() {
		net = net.Sub(net.Mul(best).Div(decimal.NewFromInt(100)))
	}

	return o.taxed(money.Quantize(money.FloorZero(net), in.Checkout.Currency), in.Checkout.Currency), nil
}

func (o *FlatTaxOracle) LineUnitPrice(_ context.Context, _ OracleInput, line checkout.Line, total money.TaxedMoney) (money.TaxedMoney, error) {
	return total.Div(int64(line.Quantity)), nil
}

func (o *FlatTaxOracle) LineTaxRate(_ context.Context, _ OracleInput, _ checkout.Line, unit money.TaxedMoney) (decimal.Decimal, error) {
	if unit.Net.IsZero() {
		return decimal.Zero, nil
	}
	return o.rate, nil
}

func (o *FlatTaxOracle) CheckoutSubtotal(ctx context.Context, in OracleInput) (money.TaxedMoney, error) {
	subtotal := money.Zero(in.Checkout.Currency)
	for _, line := range in.Lines {
		total, err := o.LineTotal(ctx, in, line)
		if err != nil {
			return money.TaxedMoney{}, err
		}
		subtotal = subtotal.Add(total)
	}
	return subtotal, nil
}

func (o *FlatTaxOracle) ShippingPrice(_ context.Context, in OracleInput) (money.TaxedMoney, error) {
	c := in.Checkout
	if c.ShippingMethod == nil || !checkout.IsShippingRequired(in.Lines) {
		return money.Zero(c.Currency), nil
	}
	return o.taxed(c.ShippingMethod.Price, c.Currency), nil
}

func (o *FlatTaxOracle) ShippingTaxRate(_ context.Context, _ OracleInput, shipping money.TaxedMoney) (decimal.Decimal, error) {
	if shipping.Net.IsZero() {
		return decimal.Zero, nil
	}
	return o.rate, nil
}

// CheckoutTotal is subtotal + shipping - voucher discount, floored at zero.
func (o *FlatTaxOracle) CheckoutTotal(ctx context.Context, in OracleInput) (money.TaxedMoney, error) {
	subtotal, err := o.CheckoutSubtotal(ctx, in)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	shipping, err := o.ShippingPrice(ctx, in)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return subtotal.Add(shipping).SubFlat(in.Checkout.Discount), nil
}
