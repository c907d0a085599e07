package checkout

// Validate checks that the checkout carries everything an order needs.
// Pickup checkouts never need a shipping address or method.
func Validate(c *Checkout, lines []Line) error {
	if len(lines) == 0 {
		return ErrEmptyCheckout
	}
	if c.BillingAddress == nil {
		return ErrBillingAddressNotSet
	}
	if !c.IsDelivery() || !IsShippingRequired(lines) {
		return nil
	}
	if c.ShippingAddress == nil {
		return ErrShippingAddressNotSet
	}
	if c.ShippingMethod == nil {
		return ErrShippingMethodNotSet
	}
	return nil
}
