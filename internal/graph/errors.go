package graph

import (
	"context"
	"errors"

	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/checkout/complete"
	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/inventory"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/payment"
	"warimas-checkout/internal/pricing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

type Code string

const (
	CodeInsufficientStock        Code = "INSUFFICIENT_STOCK"
	CodeVoucherNotApplicable     Code = "VOUCHER_NOT_APPLICABLE"
	CodeGiftCardNotApplicable    Code = "GIFT_CARD_NOT_APPLICABLE"
	CodeTaxError                 Code = "TAX_ERROR"
	CodeChannelInactive          Code = "CHANNEL_INACTIVE"
	CodePartialPaymentNotAllowed Code = "PARTIAL_PAYMENT_NOT_ALLOWED"
	CodeCheckoutNotFullyPaid     Code = "CHECKOUT_NOT_FULLY_PAID"
	CodeNotSupportedGateway      Code = "NOT_SUPPORTED_GATEWAY"
	CodePaymentError             Code = "PAYMENT_ERROR"
	CodeMinOrderNotMet           Code = "MIN_ORDER_NOT_MET"
	CodeNoLines                  Code = "NO_LINES"
	CodeBillingAddressNotSet     Code = "BILLING_ADDRESS_NOT_SET"
	CodeShippingAddressNotSet    Code = "SHIPPING_ADDRESS_NOT_SET"
	CodeShippingMethodNotSet     Code = "SHIPPING_METHOD_NOT_SET"
	CodeInvalid                  Code = "INVALID"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeCompletionInProgress     Code = "CHECKOUT_COMPLETION_IN_PROGRESS"
	CodeGraphQLError             Code = "GRAPHQL_ERROR"
)

type classified struct {
	code  Code
	field string
	extra map[string]any
}

// Classify maps a pipeline error to its stable code and the input field it
// concerns, if any.
func Classify(err error) (Code, string) {
	c := classify(err)
	return c.code, c.field
}

func classify(err error) classified {
	var (
		stockErr    *inventory.InsufficientStockError
		minOrderErr *pricing.MinimumOrderNotMetError
		paymentErr  *payment.PaymentError
	)

	switch {
	case errors.As(err, &stockErr):
		variants := make([]int64, 0, len(stockErr.Items))
		for _, it := range stockErr.Items {
			variants = append(variants, it.VariantID)
		}
		return classified{code: CodeInsufficientStock, field: "quantity", extra: map[string]any{"variants": variants}}
	case errors.As(err, &minOrderErr):
		return classified{code: CodeMinOrderNotMet, extra: map[string]any{
			"minOrder": minOrderErr.MinRequired.String(),
			"currency": minOrderErr.Currency,
		}}
	case errors.As(err, &paymentErr):
		return classified{code: CodePaymentError}
	case errors.Is(err, discount.ErrVoucherNotApplicable), errors.Is(err, discount.ErrVoucherExpired):
		return classified{code: CodeVoucherNotApplicable, field: "voucherCode"}
	case errors.Is(err, giftcard.ErrGiftCardInactive):
		return classified{code: CodeGiftCardNotApplicable, field: "giftCards"}
	case errors.Is(err, pricing.ErrTaxComputation):
		return classified{code: CodeTaxError}
	case errors.Is(err, checkout.ErrChannelInactive):
		return classified{code: CodeChannelInactive, field: "channel"}
	case errors.Is(err, payment.ErrPartialPaymentNotAllowed):
		return classified{code: CodePartialPaymentNotAllowed, field: "amount"}
	case errors.Is(err, complete.ErrPaymentMissing):
		return classified{code: CodeCheckoutNotFullyPaid}
	case errors.Is(err, payment.ErrUnsupportedGateway):
		return classified{code: CodeNotSupportedGateway, field: "gateway"}
	case errors.Is(err, checkout.ErrEmptyCheckout):
		return classified{code: CodeNoLines, field: "lines"}
	case errors.Is(err, checkout.ErrBillingAddressNotSet):
		return classified{code: CodeBillingAddressNotSet, field: "billingAddress"}
	case errors.Is(err, checkout.ErrShippingAddressNotSet):
		return classified{code: CodeShippingAddressNotSet, field: "shippingAddress"}
	case errors.Is(err, checkout.ErrShippingMethodNotSet):
		return classified{code: CodeShippingMethodNotSet, field: "shippingMethod"}
	case errors.Is(err, checkout.ErrInvalidRedirectURL):
		return classified{code: CodeInvalid, field: "redirectUrl"}
	case errors.Is(err, checkout.ErrCheckoutNotFound):
		return classified{code: CodeNotFound, field: "token"}
	case errors.Is(err, complete.ErrCompletionInProgress):
		return classified{code: CodeCompletionInProgress, field: "token"}
	}
	return classified{code: CodeGraphQLError}
}

// ErrorPresenter renders errors the way checkout mutations report them:
// message plus extensions.code and extensions.field. Unclassified errors are
// logged and hidden behind a generic message.
func ErrorPresenter(ctx context.Context, err error) *gqlerror.Error {
	presented := graphql.DefaultErrorPresenter(ctx, err)

	c := classify(err)
	if c.code == CodeGraphQLError {
		logger.FromCtx(ctx).Error("unhandled error", zap.Error(err))
		presented.Message = "internal server error"
	}

	if presented.Extensions == nil {
		presented.Extensions = map[string]any{}
	}
	presented.Extensions["code"] = string(c.code)
	if c.field != "" {
		presented.Extensions["field"] = c.field
	}
	for k, v := range c.extra {
		presented.Extensions[k] = v
	}
	return presented
}
