package order

import (
	"time"

	"warimas-checkout/internal/money"

	"github.com/shopspring/decimal"
)

type Response struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	CheckoutToken   string          `json:"checkoutToken"`
	Status          Status          `json:"status"`
	Currency        string          `json:"currency"`
	Total           string          `json:"total"`
	TotalNet        string          `json:"totalNet"`
	Undiscounted    string          `json:"undiscountedTotal"`
	ShippingPrice   string          `json:"shippingPrice"`
	TotalPaid       string          `json:"totalPaid"`
	DeliveryFee     *string         `json:"deliveryFee,omitempty"`
	TransactionCost *string         `json:"transactionCost,omitempty"`
	UserEmail       string          `json:"userEmail"`
	RedirectURL     string          `json:"redirectUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Lines           []*LineResponse `json:"lines"`
}

type LineResponse struct {
	ID          string           `json:"id"`
	VariantID   int64            `json:"variantId"`
	ProductName string           `json:"productName"`
	VariantName string           `json:"variantName"`
	SKU         string           `json:"sku"`
	Quantity    int              `json:"quantity"`
	UnitPrice   string           `json:"unitPrice"`
	TotalPrice  string           `json:"totalPrice"`
	TaxRate     string           `json:"taxRate"`
	Options     []OptionSnapshot `json:"options"`
}

func ToResponse(o *Order) *Response {
	if o == nil {
		return nil
	}

	f := formatter(o.Currency)
	lines := make([]*LineResponse, 0, len(o.Lines))
	for i := range o.Lines {
		lines = append(lines, toLineResponse(&o.Lines[i], f))
	}

	return &Response{
		ID:              o.ID.String(),
		Number:          o.Number,
		CheckoutToken:   o.CheckoutToken.String(),
		Status:          o.Status,
		Currency:        o.Currency,
		Total:           f(o.Total.Gross),
		TotalNet:        f(o.Total.Net),
		Undiscounted:    f(o.Undiscounted.Gross),
		ShippingPrice:   f(o.ShippingPrice.Gross),
		TotalPaid:       f(o.TotalPaid),
		DeliveryFee:     optional(o.DeliveryFee, f),
		TransactionCost: optional(o.TransactionCost, f),
		UserEmail:       o.UserEmail,
		RedirectURL:     o.RedirectURL,
		CreatedAt:       o.CreatedAt,
		Lines:           lines,
	}
}

func toLineResponse(l *Line, f func(decimal.Decimal) string) *LineResponse {
	name := l.ProductName
	if l.TranslatedProductName != "" {
		name = l.TranslatedProductName
	}
	variant := l.VariantName
	if l.TranslatedVariantName != "" {
		variant = l.TranslatedVariantName
	}
	return &LineResponse{
		ID:          l.ID.String(),
		VariantID:   l.VariantID,
		ProductName: name,
		VariantName: variant,
		SKU:         l.SKU,
		Quantity:    l.Quantity,
		UnitPrice:   f(l.UnitPrice.Gross),
		TotalPrice:  f(l.TotalPrice.Gross),
		TaxRate:     l.TaxRate.String(),
		Options:     l.Options,
	}
}

func formatter(currency string) func(decimal.Decimal) string {
	places := money.MinorUnits(currency)
	return func(d decimal.Decimal) string {
		return d.StringFixed(places)
	}
}

func optional(d *decimal.Decimal, f func(decimal.Decimal) string) *string {
	if d == nil {
		return nil
	}
	s := f(*d)
	return &s
}
