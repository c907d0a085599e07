package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/checkout/complete"
	"warimas-checkout/internal/graph"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"
	"warimas-checkout/internal/order"
	"warimas-checkout/internal/payment"
	"warimas-checkout/internal/user"
	"warimas-checkout/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

type Completer interface {
	CompleteCheckout(ctx context.Context, in complete.Input) (*complete.Result, error)
}

type CheckoutReader interface {
	GetByToken(ctx context.Context, token uuid.UUID) (*checkout.Checkout, error)
}

type PaymentCreator interface {
	Create(ctx context.Context, p *payment.Payment) error
}

type GatewayLookup interface {
	Get(id string) (payment.Gateway, error)
}

type Handler struct {
	Completer    Completer
	Checkouts    CheckoutReader
	Payments     PaymentCreator
	Gateways     GatewayLookup
	// AllowedHosts restricts payment return URLs; empty allows any host.
	AllowedHosts []string
}

type completeRequest struct {
	PaymentData  map[string]any   `json:"paymentData"`
	StoreSource  bool             `json:"storeSource"`
	TrackingCode string           `json:"trackingCode"`
	RedirectURL  string           `json:"redirectUrl"`
	Amount       *decimal.Decimal `json:"amount"`
}

type completeResponse struct {
	Order              *order.Response `json:"order"`
	ConfirmationNeeded bool            `json:"confirmationNeeded"`
	ConfirmationData   map[string]any  `json:"confirmationData,omitempty"`
	RedirectURL        string          `json:"redirectUrl,omitempty"`
}

type createPaymentRequest struct {
	Gateway   string          `json:"gateway"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	ReturnURL string          `json:"returnUrl"`
}

type paymentResponse struct {
	ID           int64                `json:"id"`
	Gateway      string               `json:"gateway"`
	Total        string               `json:"total"`
	Currency     string               `json:"currency"`
	ChargeStatus payment.ChargeStatus `json:"chargeStatus"`
}

type envelope struct {
	Data   any           `json:"data,omitempty"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

// CompleteCheckout handles POST /checkouts/{token}/complete.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeError(ctx, w, checkout.ErrCheckoutNotFound)
		return
	}

	var req completeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.Completer.CompleteCheckout(ctx, complete.Input{
		Token:          token,
		PaymentData:    req.PaymentData,
		StoreSource:    req.StoreSource,
		User:           currentUser(ctx),
		TrackingCode:   req.TrackingCode,
		RedirectURL:    req.RedirectURL,
		DeclaredAmount: req.Amount,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, envelope{Data: completeResponse{
		Order:              order.ToResponse(res.Order),
		ConfirmationNeeded: res.ActionRequired,
		ConfirmationData:   res.ActionData,
		RedirectURL:        res.RedirectURL,
	}})
}

// CreatePayment handles POST /checkouts/{token}/payments. The new payment
// replaces any earlier unfinished one.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "CreatePayment"))

	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeError(ctx, w, checkout.ErrCheckoutNotFound)
		return
	}

	var req createPaymentRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if _, err := h.Gateways.Get(req.Gateway); err != nil {
		writeError(ctx, w, err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(ctx, w, payment.ErrPartialPaymentNotAllowed)
		return
	}

	c, err := h.Checkouts.GetByToken(ctx, token)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := checkout.ValidateRedirectURL(req.ReturnURL, h.AllowedHosts); err != nil {
		writeError(ctx, w, err)
		return
	}

	var userEmail string
	if u := currentUser(ctx); u != nil {
		userEmail = u.Email
	}
	p := &payment.Payment{
		Gateway:       req.Gateway,
		Token:         req.Token,
		Total:         money.Quantize(req.Amount, c.Currency),
		Currency:      c.Currency,
		CustomerEmail: c.CustomerEmail(userEmail),
		CheckoutToken: &c.Token,
		ReturnURL:     req.ReturnURL,
	}
	if err := h.Payments.Create(ctx, p); err != nil {
		writeError(ctx, w, err)
		return
	}

	log.Info("payment created", zap.Int64("payment_id", p.ID), zap.String("gateway", p.Gateway))
	utils.WriteJSON(w, http.StatusCreated, envelope{Data: paymentResponse{
		ID:           p.ID,
		Gateway:      p.Gateway,
		Total:        p.Total.StringFixed(money.MinorUnits(p.Currency)),
		Currency:     p.Currency,
		ChargeStatus: p.ChargeStatus,
	}})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func currentUser(ctx context.Context) *user.User {
	id, ok := utils.IdentityFrom(ctx)
	if !ok {
		return nil
	}
	return &user.User{
		ID:    id.UserID,
		Email: id.Email,
		Role:  user.Role(id.Role),
	}
}

func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errInvalidBody
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	utils.WriteJSON(w, http.StatusBadRequest, envelope{Errors: gqlerror.List{{
		Message:    err.Error(),
		Extensions: map[string]any{"code": string(graph.CodeInvalid)},
	}}})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	presented := graph.ErrorPresenter(ctx, err)
	code, _ := graph.Classify(err)
	utils.WriteJSON(w, statusFor(code), envelope{Errors: gqlerror.List{presented}})
}

func statusFor(code graph.Code) int {
	switch code {
	case graph.CodeNotFound:
		return http.StatusNotFound
	case graph.CodeInsufficientStock, graph.CodeCompletionInProgress:
		return http.StatusConflict
	case graph.CodePaymentError, graph.CodeCheckoutNotFullyPaid:
		return http.StatusPaymentRequired
	case graph.CodeGraphQLError:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}
