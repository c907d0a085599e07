package discount

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrVoucherExpired       = errors.New("voucher expired in meantime, please review your checkout")
	ErrVoucherNotApplicable = errors.New("voucher is not applicable to this checkout")
)

const (
	ValueTypeFixed      = "fixed"
	ValueTypePercentage = "percentage"
)

type Voucher struct {
	ID                   int64
	Code                 string
	Name                 string
	Used                 int
	UsageLimit           *int
	ApplyOncePerCustomer bool
	DiscountValueType    string
	DiscountValue        decimal.Decimal
	StartDate            time.Time
	EndDate              *time.Time
}

// Usage is the receipt of one successful Apply. Release reverses it at most once.
type Usage struct {
	Voucher       Voucher
	CustomerEmail string
	// PerCustomer is set when a voucher_customers row was written.
	PerCustomer bool

	released atomic.Bool
}

// Released reports whether the usage was already given back.
func (u *Usage) Released() bool {
	return u.released.Load()
}
