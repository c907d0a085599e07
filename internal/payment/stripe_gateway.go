package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/customer"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
	"go.uber.org/zap"
)

// stripeAPI is the subset of the Stripe client used by the gateway.
type stripeAPI interface {
	NewIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	ConfirmIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	GetIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CaptureIntent(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CancelIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type liveStripeAPI struct{}

func (liveStripeAPI) NewIntent(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(p)
}

func (liveStripeAPI) ConfirmIntent(id string, p *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Confirm(id, p)
}

func (liveStripeAPI) GetIntent(id string, p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, p)
}

func (liveStripeAPI) CaptureIntent(id string, p *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Capture(id, p)
}

func (liveStripeAPI) CancelIntent(id string, p *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, p)
}

func (liveStripeAPI) NewRefund(p *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(p)
}

func (liveStripeAPI) NewCustomer(p *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(p)
}

type stripeGateway struct {
	api         stripeAPI
	autoCapture bool
}

func NewStripeGateway(secretKey string, autoCapture bool) Gateway {
	if secretKey == "" {
		logger.L().Warn("Stripe secret key is empty")
	}
	stripe.Key = secretKey
	return &stripeGateway{api: liveStripeAPI{}, autoCapture: autoCapture}
}

func (s *stripeGateway) ID() string        { return GatewayStripe }
func (s *stripeGateway) AutoCapture() bool { return s.autoCapture }

// ----------------- Authorize -----------------

func (s *stripeGateway) Authorize(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayStripe),
		zap.Int64("payment_id", data.Payment.ID),
	)

	captureMethod := stripe.PaymentIntentCaptureMethodManual
	if s.autoCapture {
		captureMethod = stripe.PaymentIntentCaptureMethodAutomatic
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(money.ToMinor(data.Amount, data.Currency)),
		Currency:      stripe.String(strings.ToLower(data.Currency)),
		CaptureMethod: stripe.String(string(captureMethod)),
		PaymentMethod: stripe.String(data.Payment.Token),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(data.Payment, "authorize"))
	if data.Payment.ReturnURL != "" {
		params.ReturnURL = stripe.String(data.Payment.ReturnURL)
	}
	if data.Payment.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(data.Payment.CustomerEmail)
	}
	if data.Payment.CheckoutToken != nil {
		params.AddMetadata("checkout_token", data.Payment.CheckoutToken.String())
	}

	customerID := data.CustomerID
	if customerID == "" && data.StoreSource {
		cp := &stripe.CustomerParams{Email: stripe.String(data.Payment.CustomerEmail)}
		cp.Context = ctx
		c, err := s.api.NewCustomer(cp)
		if err != nil {
			log.Error("failed creating stripe customer", zap.Error(err))
			return s.failure(err, KindAuth, data)
		}
		customerID = c.ID
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	if data.StoreSource {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	pi, err := s.api.NewIntent(params)
	if err != nil {
		log.Warn("payment intent creation failed", zap.Error(err))
		return s.failure(err, KindAuth, data)
	}

	resp := s.fromIntent(pi, data)
	resp.CustomerID = customerID
	log.Info("payment intent created",
		zap.String("intent_id", pi.ID),
		zap.String("status", string(pi.Status)),
	)
	return resp, nil
}

// ----------------- Capture -----------------

func (s *stripeGateway) Capture(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(money.ToMinor(data.Amount, data.Currency)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(data.Payment, "capture"))

	pi, err := s.api.CaptureIntent(data.Payment.PSPReference, params)
	if err != nil {
		logger.FromCtx(ctx).Warn("capture failed", zap.String("intent_id", data.Payment.PSPReference), zap.Error(err))
		return s.failure(err, KindCapture, data)
	}
	return s.fromIntent(pi, data), nil
}

// ----------------- Confirm -----------------

// Confirm re-reads an intent after the customer completed the required action
// and confirms it again if it still waits for confirmation.
func (s *stripeGateway) Confirm(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx

	pi, err := s.api.GetIntent(data.Payment.PSPReference, getParams)
	if err != nil {
		return s.failure(err, KindConfirm, data)
	}

	if pi.Status == stripe.PaymentIntentStatusRequiresConfirmation {
		params := &stripe.PaymentIntentConfirmParams{}
		params.Context = ctx
		pi, err = s.api.ConfirmIntent(pi.ID, params)
		if err != nil {
			return s.failure(err, KindConfirm, data)
		}
	}
	return s.fromIntent(pi, data), nil
}

// ----------------- Void -----------------

func (s *stripeGateway) Void(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	pi, err := s.api.CancelIntent(data.Payment.PSPReference, params)
	if err != nil {
		return s.failure(err, KindVoid, data)
	}
	resp := s.fromIntent(pi, data)
	resp.Kind = KindVoid
	resp.IsSuccess = pi.Status == stripe.PaymentIntentStatusCanceled
	return resp, nil
}

// ----------------- Refund -----------------

func (s *stripeGateway) Refund(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(data.Payment.PSPReference),
		Amount:        stripe.Int64(money.ToMinor(data.Amount, data.Currency)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(data.Payment, "refund"))

	r, err := s.api.NewRefund(params)
	if err != nil {
		return s.failure(err, KindRefund, data)
	}

	raw, _ := json.Marshal(r)
	resp := &GatewayResponse{
		IsSuccess:    r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending,
		Kind:         KindRefund,
		Amount:       money.FromMinor(r.Amount, data.Currency),
		Currency:     data.Currency,
		PSPReference: data.Payment.PSPReference,
		Raw:          raw,
	}
	if !resp.IsSuccess {
		resp.Error = "refund " + string(r.Status)
	}
	return resp, nil
}

// ----------------- helpers -----------------

func (s *stripeGateway) fromIntent(pi *stripe.PaymentIntent, data PaymentData) *GatewayResponse {
	raw, _ := json.Marshal(pi)
	resp := &GatewayResponse{
		Amount:       money.FromMinor(pi.Amount, data.Currency),
		Currency:     data.Currency,
		PSPReference: pi.ID,
		CustomerID:   data.CustomerID,
		Raw:          raw,
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		resp.IsSuccess = true
		resp.Kind = KindActionToConfirm
		resp.ActionRequired = true
		resp.ActionRequiredData = map[string]any{
			"id":            pi.ID,
			"client_secret": pi.ClientSecret,
		}
		if pi.NextAction != nil {
			resp.ActionRequiredData["type"] = string(pi.NextAction.Type)
			if pi.NextAction.RedirectToURL != nil {
				resp.ActionRequiredData["redirect_url"] = pi.NextAction.RedirectToURL.URL
			}
		}
	case stripe.PaymentIntentStatusRequiresCapture:
		resp.IsSuccess = true
		resp.Kind = KindAuth
		resp.Amount = money.FromMinor(pi.AmountCapturable, data.Currency)
	case stripe.PaymentIntentStatusSucceeded:
		resp.IsSuccess = true
		resp.Kind = KindCapture
		resp.Amount = money.FromMinor(pi.AmountReceived, data.Currency)
	case stripe.PaymentIntentStatusProcessing:
		resp.IsSuccess = true
		resp.Kind = KindPending
	case stripe.PaymentIntentStatusCanceled:
		resp.IsSuccess = false
		resp.Kind = KindVoid
		resp.Error = "payment intent was canceled"
	default:
		resp.IsSuccess = false
		resp.Kind = KindAuth
		resp.Error = "payment was declined"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			resp.Error = pi.LastPaymentError.Msg
		}
	}
	return resp
}

// failure turns a Stripe API error into a refused response; anything else is a transport error.
func (s *stripeGateway) failure(err error, kind TransactionKind, data PaymentData) (*GatewayResponse, error) {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return nil, err
	}
	return &GatewayResponse{
		IsSuccess:    false,
		Kind:         kind,
		Amount:       data.Amount,
		Currency:     data.Currency,
		Error:        se.Msg,
		PSPReference: data.Payment.PSPReference,
	}, nil
}
