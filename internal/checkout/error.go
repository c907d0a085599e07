package checkout

import "errors"

var (
	// -- Lookup --
	ErrCheckoutNotFound = errors.New("checkout not found")

	// -- Preparation --
	ErrChannelInactive       = errors.New("cannot complete checkout with inactive channel")
	ErrInvalidRedirectURL    = errors.New("invalid redirect url")
	ErrEmptyCheckout         = errors.New("cannot complete checkout without lines")
	ErrBillingAddressNotSet  = errors.New("billing address is not set")
	ErrShippingAddressNotSet = errors.New("shipping address is not set")
	ErrShippingMethodNotSet  = errors.New("shipping method is not set")
)
