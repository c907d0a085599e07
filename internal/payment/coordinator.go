package payment

import (
	"context"
	"errors"

	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Coordinator drives gateway calls and keeps the payment record in step with
// every transaction it produces.
type Coordinator struct {
	registry *Registry
	repo     Repository
}

func NewCoordinator(registry *Registry, repo Repository) *Coordinator {
	return &Coordinator{registry: registry, repo: repo}
}

type ProcessInput struct {
	Payment     *Payment
	CustomerID  string
	StoreSource bool
	Data        map[string]any
}

// ValidateAmount rejects a declared payment amount that differs from the
// computed checkout total once both are rounded to the currency.
func ValidateAmount(declared, computed decimal.Decimal, currency string) error {
	if !money.Equal(declared, computed, currency) {
		return ErrPartialPaymentNotAllowed
	}
	return nil
}

// Process confirms a payment waiting for confirmation, otherwise authorizes it
// and captures right away when the gateway is configured to.
// A refused payment returns the recorded transaction together with a *PaymentError.
func (c *Coordinator) Process(ctx context.Context, in ProcessInput) (*Transaction, error) {
	p := in.Payment
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "payment"),
		zap.String("method", "Process"),
		zap.Int64("payment_id", p.ID),
		zap.String("gateway", p.Gateway),
	)

	gw, err := c.registry.Get(p.Gateway)
	if err != nil {
		return nil, err
	}

	data := PaymentData{
		Payment:     p,
		Amount:      p.Total,
		Currency:    p.Currency,
		CustomerID:  in.CustomerID,
		StoreSource: in.StoreSource,
		Data:        in.Data,
	}

	var txn *Transaction
	if p.ToConfirm {
		txn, err = c.call(ctx, gw.Confirm, data, KindConfirm)
	} else {
		txn, err = c.call(ctx, gw.Authorize, data, KindAuth)
		if err == nil && txn.IsSuccess && txn.Kind == KindAuth && gw.AutoCapture() {
			data.CustomerID = firstNonEmpty(txn.CustomerID, data.CustomerID)
			txn, err = c.call(ctx, gw.Capture, data, KindCapture)
		}
	}
	if err != nil {
		return nil, err
	}

	if !txn.IsSuccess {
		log.Warn("payment refused", zap.String("error", txn.Error))
		return txn, &PaymentError{Message: txn.Error}
	}

	log.Info("payment processed",
		zap.String("kind", string(txn.Kind)),
		zap.Bool("action_required", txn.ActionRequired),
	)
	return txn, nil
}

// Record applies a transaction reported out of band, e.g. by a provider webhook.
// A capture the payment already holds for the same provider reference is
// acknowledged without being counted again.
func (c *Coordinator) Record(ctx context.Context, p *Payment, txn *Transaction) error {
	txn.PaymentID = p.ID
	if p.HasCaptured(txn) {
		logger.FromCtx(ctx).Info("capture already recorded",
			zap.Int64("payment_id", p.ID),
			zap.String("psp_reference", txn.PSPReference),
		)
		return nil
	}
	apply(p, txn, p.ToConfirm)
	if err := c.repo.SaveTransaction(ctx, txn); err != nil {
		return err
	}
	if err := c.repo.Update(ctx, p); err != nil {
		return err
	}
	if !txn.IsSuccess {
		return &PaymentError{Message: txn.Error}
	}
	return nil
}

// RefundOrVoid releases whatever the payment holds: captured funds are refunded,
// an open authorization is voided.
func (c *Coordinator) RefundOrVoid(ctx context.Context, p *Payment) error {
	if p == nil || !p.HoldsFunds() {
		return ErrNothingToReverse
	}

	gw, err := c.registry.Get(p.Gateway)
	if err != nil {
		return err
	}

	data := PaymentData{Payment: p, Currency: p.Currency}

	var txn *Transaction
	if p.CanRefund() {
		data.Amount = p.CapturedAmount
		txn, err = c.call(ctx, gw.Refund, data, KindRefund)
	} else {
		data.Amount = p.Total
		txn, err = c.call(ctx, gw.Void, data, KindVoid)
	}
	if err != nil {
		return err
	}
	if !txn.IsSuccess {
		return &PaymentError{Message: txn.Error}
	}
	return nil
}

type gatewayCall func(ctx context.Context, data PaymentData) (*GatewayResponse, error)

// call runs one gateway operation and persists its outcome. A transport error
// is recorded as a failed transaction before being returned.
func (c *Coordinator) call(ctx context.Context, fn gatewayCall, data PaymentData, kind TransactionKind) (*Transaction, error) {
	resp, gwErr := fn(ctx, data)
	if gwErr != nil {
		resp = &GatewayResponse{
			IsSuccess: false,
			Kind:      kind,
			Amount:    data.Amount,
			Currency:  data.Currency,
			Error:     gwErr.Error(),
		}
	}
	if resp.Kind == "" {
		resp.Kind = kind
	}

	txn := &Transaction{
		PaymentID:          data.Payment.ID,
		Kind:               resp.Kind,
		IsSuccess:          resp.IsSuccess,
		ActionRequired:     resp.ActionRequired,
		ActionRequiredData: resp.ActionRequiredData,
		Amount:             resp.Amount,
		Currency:           firstNonEmpty(resp.Currency, data.Currency),
		Error:              resp.Error,
		CustomerID:         firstNonEmpty(resp.CustomerID, data.CustomerID),
		PSPReference:       resp.PSPReference,
		GatewayResponse:    resp.Raw,
	}

	apply(data.Payment, txn, kind == KindConfirm)

	if err := c.repo.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}
	if err := c.repo.Update(ctx, data.Payment); err != nil {
		return nil, err
	}

	if gwErr != nil {
		return nil, errors.Join(&PaymentError{Message: "payment provider unavailable"}, gwErr)
	}
	return txn, nil
}

// apply moves the payment's charge state according to a transaction outcome.
func apply(p *Payment, txn *Transaction, confirming bool) {
	if txn.PSPReference != "" {
		p.PSPReference = txn.PSPReference
	}

	if !txn.IsSuccess {
		if txn.Kind == KindAuth || txn.Kind == KindConfirm {
			p.ChargeStatus = ChargeRefused
			p.IsActive = false
		}
		return
	}

	if txn.ActionRequired {
		p.ToConfirm = true
		return
	}
	if confirming {
		p.ToConfirm = false
	}

	switch txn.Kind {
	case KindAuth:
		p.Authorized = true
	case KindPending:
		p.Authorized = true
		p.ChargeStatus = ChargePending
	case KindCapture:
		p.Authorized = true
		p.CapturedAmount = p.CapturedAmount.Add(txn.Amount)
		if p.CapturedAmount.GreaterThanOrEqual(p.Total) {
			p.ChargeStatus = ChargeFullyCharged
		} else {
			p.ChargeStatus = ChargePartiallyCharged
		}
	case KindVoid:
		p.Authorized = false
		p.IsActive = false
		p.ChargeStatus = ChargeCancelled
	case KindRefund:
		p.CapturedAmount = money.FloorZero(p.CapturedAmount.Sub(txn.Amount))
		if p.CapturedAmount.IsZero() {
			p.ChargeStatus = ChargeFullyRefunded
			p.IsActive = false
		} else {
			p.ChargeStatus = ChargePartiallyRefunded
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
