package payment

import "errors"

var (
	ErrUnsupportedGateway       = errors.New("payment gateway is not supported")
	ErrPartialPaymentNotAllowed = errors.New("partial payments are not allowed, amount should be equal checkout's total")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrNothingToReverse         = errors.New("payment holds no funds to reverse")
)

// PaymentError is a gateway refusal surfaced to the customer.
type PaymentError struct {
	Message string
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return "payment failed"
	}
	return e.Message
}
