package order

import (
	"encoding/json"
	"time"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnconfirmed Status = "unconfirmed"
	StatusUnfulfilled Status = "unfulfilled"
)

const OriginCheckout = "checkout"

const DiscountTypeVoucher = "voucher"

type Order struct {
	ID            uuid.UUID
	Number        string
	CheckoutToken uuid.UUID
	Status        Status
	Origin        string
	CreatedAt     time.Time

	// Optional / lifecycle-dependent
	UserID    *uint
	UserEmail string

	ChannelSlug  string
	Currency     string
	LanguageCode string

	BillingAddressID  *uuid.UUID
	ShippingAddressID *uuid.UUID

	ShippingMethodID   *int64
	ShippingMethodName string
	ShippingPrice      money.TaxedMoney
	ShippingTaxRate    decimal.Decimal

	Total           money.TaxedMoney
	Undiscounted    money.TaxedMoney
	TotalPaid       decimal.Decimal
	DeliveryFee     *decimal.Decimal
	TransactionCost *decimal.Decimal

	CustomerNote    string
	TrackingCode    string
	RedirectURL     string
	Metadata        map[string]string
	PrivateMetadata map[string]string

	Lines     []Line
	Discounts []Discount
}

type Line struct {
	ID      uuid.UUID
	OrderID uuid.UUID

	VariantID             int64
	ProductName           string
	VariantName           string
	TranslatedProductName string
	TranslatedVariantName string
	SKU                   string
	IsShippingRequired    bool

	Quantity   int
	Currency   string
	UnitPrice  money.TaxedMoney
	TotalPrice money.TaxedMoney
	TaxRate    decimal.Decimal

	Options []OptionSnapshot
}

// OptionSnapshot freezes an option value as it was priced at purchase time.
type OptionSnapshot struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

type Discount struct {
	ID             int64
	OrderID        uuid.UUID
	Type           string
	ValueType      string
	Value          decimal.Decimal
	Amount         decimal.Decimal
	Currency       string
	Name           string
	TranslatedName string
	VoucherCode    string
	// Voucher is a frozen copy of the voucher definition that was granted.
	Voucher json.RawMessage
}

type VoucherSnapshot struct {
	ID                   int64           `json:"id"`
	Code                 string          `json:"code"`
	Name                 string          `json:"name"`
	DiscountValueType    string          `json:"discount_value_type"`
	DiscountValue        decimal.Decimal `json:"discount_value"`
	ApplyOncePerCustomer bool            `json:"apply_once_per_customer"`
	UsageLimit           *int            `json:"usage_limit"`
}

// Draft is an order assembled in memory, ready to be materialized.
type Draft struct {
	CheckoutToken uuid.UUID
	UserID        *uint
	UserEmail     string

	ChannelSlug  string
	Currency     string
	Country      string
	LanguageCode string

	BillingAddress  *address.Address
	ShippingAddress *address.Address

	ShippingMethodID   *int64
	ShippingMethodName string
	ShippingPrice      money.TaxedMoney
	ShippingTaxRate    decimal.Decimal

	Total           money.TaxedMoney
	Undiscounted    money.TaxedMoney
	DeliveryFee     *decimal.Decimal
	TransactionCost *decimal.Decimal
	// TotalPriceLeft is what attached gift cards are consumed against.
	TotalPriceLeft decimal.Decimal

	VoucherCode            *string
	Discount               decimal.Decimal
	DiscountName           string
	TranslatedDiscountName string

	CustomerNote    string
	TrackingCode    string
	RedirectURL     string
	Metadata        map[string]string
	PrivateMetadata map[string]string

	Lines []Line
}

func (d *Draft) HasVoucherDiscount() bool {
	return d.VoucherCode != nil && *d.VoucherCode != "" && d.Discount.IsPositive()
}

// LinesTotal sums the gross line totals.
func (d *Draft) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range d.Lines {
		sum = sum.Add(l.TotalPrice.Gross)
	}
	return sum
}
