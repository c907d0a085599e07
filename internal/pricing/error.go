package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrTaxComputation = errors.New("unable to calculate taxes")

// MinimumOrderNotMetError is returned when a delivery order is below the
// configured minimum order value.
type MinimumOrderNotMetError struct {
	MinRequired decimal.Decimal
	Currency    string
}

func (e *MinimumOrderNotMetError) Error() string {
	return fmt.Sprintf("the subtotal must be equal or greater than %s %s", e.MinRequired.StringFixed(2), e.Currency)
}
