package checkout

import (
	"time"

	"warimas-checkout/internal/address"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderTypeDelivery = "delivery"
	OrderTypePickup   = "pickup"
)

type Checkout struct {
	Token     uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	// Optional / lifecycle-dependent
	UserID *uint
	Email  string

	ChannelSlug   string
	ChannelActive bool
	Currency      string
	Country       string
	LanguageCode  string

	BillingAddressID  *uuid.UUID
	ShippingAddressID *uuid.UUID
	BillingAddress    *address.Address
	ShippingAddress   *address.Address
	ShippingMethod    *ShippingMethod

	VoucherCode            *string
	Discount               decimal.Decimal
	DiscountName           *string
	TranslatedDiscountName *string

	OrderType       string
	Note            string
	TrackingCode    string
	RedirectURL     string
	Metadata        map[string]string
	PrivateMetadata map[string]string
}

type ShippingMethod struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

type Line struct {
	ID             uuid.UUID
	Quantity       int
	Variant        Variant
	OptionValueIDs []int64
}

type Variant struct {
	ID                 int64
	SKU                string
	Name               string
	ProductID          int64
	ProductName        string
	Price              decimal.Decimal
	IsShippingRequired bool
}

func (c *Checkout) IsDelivery() bool {
	return c.OrderType == OrderTypeDelivery
}

// DeliveryAddress is the address delivery fees are banded on.
func (c *Checkout) DeliveryAddress() *address.Address {
	if c.ShippingAddress != nil {
		return c.ShippingAddress
	}
	return c.BillingAddress
}

// CustomerEmail prefers the checkout email, falling back to the owner's.
func (c *Checkout) CustomerEmail(userEmail string) string {
	if c.Email != "" {
		return c.Email
	}
	return userEmail
}

func IsShippingRequired(lines []Line) bool {
	for _, l := range lines {
		if l.Variant.IsShippingRequired {
			return true
		}
	}
	return false
}
