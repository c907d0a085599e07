package pricing

import (
	"context"
	"errors"
	"fmt"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Input struct {
	Checkout  *checkout.Checkout
	Lines     []checkout.Line
	Discounts []Discount
	// Address is the tax address handed to the oracle.
	Address *address.Address
	// PostalCode selects the delivery band.
	PostalCode      string
	GiftCardBalance decimal.Decimal
	Gateway         string
	Settings        Settings
}

type Result struct {
	// Total is the amount the customer pays: oracle total minus gift cards,
	// plus delivery and transaction fees.
	Total           money.TaxedMoney
	Undiscounted    money.TaxedMoney
	Subtotal        money.TaxedMoney
	Shipping        money.TaxedMoney
	ShippingTaxRate decimal.Decimal
	DeliveryFee     *decimal.Decimal
	TransactionFee  *decimal.Decimal
	// TotalPriceLeft is what gift cards are consumed against.
	TotalPriceLeft decimal.Decimal
}

type Resolver struct {
	oracle Oracle
}

func NewResolver(oracle Oracle) *Resolver {
	return &Resolver{oracle: oracle}
}

func (r *Resolver) Oracle() Oracle {
	return r.oracle
}

func (r *Resolver) Resolve(ctx context.Context, in Input) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "pricing"),
		zap.String("method", "Resolve"),
	)

	c := in.Checkout
	currency := c.Currency
	oin := OracleInput{Checkout: c, Lines: in.Lines, Address: in.Address, Discounts: in.Discounts}

	// 1. Taxed total less gift card balance
	total, err := r.oracle.CheckoutTotal(ctx, oin)
	if err != nil {
		return nil, TaxError(err)
	}
	total = total.SubFlat(money.Quantize(in.GiftCardBalance, currency))

	// 2. Undiscounted total
	undiscounted := total.AddFlat(c.Discount)

	res := &Result{Undiscounted: undiscounted}

	// 3. Delivery minimum and fee
	if d := in.Settings.Delivery; d != nil && c.IsDelivery() {
		minOrder := d.MinimumOrder(in.PostalCode)
		if undiscounted.Gross.LessThan(minOrder) {
			log.Info("minimum order not met",
				zap.String("min_order", minOrder.String()),
				zap.String("undiscounted", undiscounted.Gross.String()),
			)
			return nil, &MinimumOrderNotMetError{MinRequired: minOrder, Currency: currency}
		}

		if d.Charged(undiscounted.Gross) {
			fee := money.Quantize(d.Fee(in.PostalCode), currency)
			res.DeliveryFee = &fee
			total = total.AddFlat(fee)
		}
	}

	// 4. Transaction fee
	if fee := TransactionFee(in.Settings.Store, in.Gateway); fee.IsPositive() {
		fee = money.Quantize(fee, currency)
		res.TransactionFee = &fee
		total = total.AddFlat(fee)
	}
	res.Total = total

	// 5. Shipping, resolved independently of the total
	if res.Shipping, err = r.oracle.ShippingPrice(ctx, oin); err != nil {
		return nil, TaxError(err)
	}
	if res.ShippingTaxRate, err = r.oracle.ShippingTaxRate(ctx, oin, res.Shipping); err != nil {
		return nil, TaxError(err)
	}

	// 6. Remaining price for gift card consumption
	if res.Subtotal, err = r.oracle.CheckoutSubtotal(ctx, oin); err != nil {
		return nil, TaxError(err)
	}
	left := res.Subtotal.Gross.Add(res.Shipping.Gross).Sub(c.Discount)
	res.TotalPriceLeft = money.Quantize(money.FloorZero(left), currency)

	return res, nil
}

// TaxError wraps an oracle failure in ErrTaxComputation.
func TaxError(err error) error {
	if errors.Is(err, ErrTaxComputation) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTaxComputation, err)
}
