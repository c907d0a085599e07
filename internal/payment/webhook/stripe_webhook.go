package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"
	"warimas-checkout/internal/payment"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

const (
	providerStripe  = "STRIPE"
	maxPayloadBytes = 65536
)

// Completer finishes the checkout a provider-confirmed payment belongs to.
type Completer interface {
	CompleteFromWebhook(ctx context.Context, p *payment.Payment, txn *payment.Transaction) error
}

type Handler struct {
	Repo      payment.Repository
	Completer Completer
	secret    string
}

func NewStripeHandler(repo payment.Repository, completer Completer, secret string) *Handler {
	return &Handler{
		Repo:      repo,
		Completer: completer,
		secret:    secret,
	}
}

// StripeWebhookHandler resumes checkouts whose payment finished outside the
// storefront request, e.g. after a 3-D Secure challenge.
func (h *Handler) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "StripeWebhook"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.Warn("invalid stripe signature", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var kind payment.TransactionKind
	switch event.Type {
	case "payment_intent.succeeded":
		kind = payment.KindCapture
	case "payment_intent.amount_capturable_updated":
		kind = payment.KindAuth
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	log = log.With(zap.String("event_id", event.ID), zap.String("intent_id", pi.ID))

	webhookID, dup, err := h.Repo.SavePaymentWebhook(ctx, providerStripe, event.ID, string(event.Type), pi.ID, payload, true)
	if err != nil {
		log.Error("failed to save webhook", zap.Error(err))
		http.Error(w, "failed to save webhook", http.StatusInternalServerError)
		return
	}
	if dup {
		log.Info("duplicate webhook ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	p, err := h.Repo.GetByPSPReference(ctx, payment.GatewayStripe, pi.ID)
	if err != nil {
		h.fail(ctx, webhookID, err)
		if errors.Is(err, payment.ErrPaymentNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "failed to load payment", http.StatusInternalServerError)
		return
	}

	amount := pi.AmountReceived
	if kind == payment.KindAuth {
		amount = pi.AmountCapturable
	}
	txn := &payment.Transaction{
		Kind:            kind,
		IsSuccess:       true,
		Amount:          money.FromMinor(amount, p.Currency),
		Currency:        p.Currency,
		PSPReference:    pi.ID,
		GatewayResponse: event.Data.Raw,
	}

	if err := h.Completer.CompleteFromWebhook(ctx, p, txn); err != nil {
		log.Warn("checkout completion from webhook failed", zap.Error(err))
		h.fail(ctx, webhookID, err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.Repo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) fail(ctx context.Context, webhookID int64, cause error) {
	if err := h.Repo.MarkWebhookFailed(ctx, webhookID, cause.Error()); err != nil {
		logger.FromCtx(ctx).Error("failed to mark webhook failed", zap.Error(err))
	}
}
