package complete

import (
	"context"
	"errors"

	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/payment"

	"go.uber.org/zap"
)

const (
	stepVoucher = "voucher"
	stepPayment = "payment"
)

type VoucherReleaser interface {
	Release(ctx context.Context, u *discount.Usage) error
}

type PaymentReverser interface {
	RefundOrVoid(ctx context.Context, p *payment.Payment) error
}

// Compensator undoes the side effects of a completion that failed after the
// voucher was applied or the payment was taken. Its failures are logged and
// counted, never returned: the caller reports the original error.
type Compensator struct {
	vouchers VoucherReleaser
	payments PaymentReverser
	sagas    SagaRepository
	metrics  Recorder
}

func NewCompensator(vouchers VoucherReleaser, payments PaymentReverser, sagas SagaRepository, metrics Recorder) *Compensator {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Compensator{vouchers: vouchers, payments: payments, sagas: sagas, metrics: metrics}
}

// ReleaseVoucherUsage gives back the voucher use. It reports whether nothing
// is left to release.
func (c *Compensator) ReleaseVoucherUsage(ctx context.Context, u *discount.Usage) bool {
	if u == nil || u.Released() {
		return true
	}
	err := c.vouchers.Release(ctx, u)
	c.metrics.ObserveCompensation(stepVoucher, err == nil)
	if err != nil {
		logger.FromCtx(ctx).Error("compensation: voucher release failed",
			zap.String("voucher", u.Voucher.Code),
			zap.Error(err),
		)
		return false
	}
	return true
}

// VoidOrRefund releases the funds p holds. It reports whether nothing is left
// held on the provider.
func (c *Compensator) VoidOrRefund(ctx context.Context, p *payment.Payment) bool {
	if p == nil {
		return true
	}
	log := logger.FromCtx(ctx).With(
		zap.Int64("payment_id", p.ID),
		zap.String("gateway", p.Gateway),
	)

	err := c.payments.RefundOrVoid(ctx, p)
	if errors.Is(err, payment.ErrNothingToReverse) {
		log.Debug("compensation: payment holds nothing")
		return true
	}
	c.metrics.ObserveCompensation(stepPayment, err == nil)
	if err != nil {
		log.Error("compensation: void or refund failed", zap.Error(err))
		return false
	}
	log.Info("compensation: payment reversed")
	return true
}

// Compensate runs both steps and records the outcome on the saga. A saga left
// in compensating is picked up by the Reconciler.
func (c *Compensator) Compensate(ctx context.Context, s *Saga, u *discount.Usage, p *payment.Payment, cause error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "compensator"))
	log.Warn("compensating failed completion", zap.Error(cause))

	if s != nil {
		s.State = SagaCompensating
		s.LastError = cause.Error()
		c.save(ctx, s)
	}

	voucherDone := c.ReleaseVoucherUsage(ctx, u)
	paymentDone := c.VoidOrRefund(ctx, p)

	if s == nil {
		return
	}
	s.VoucherReleased = voucherDone
	if voucherDone && paymentDone {
		s.State = SagaCompensated
	}
	c.save(ctx, s)
}

func (c *Compensator) save(ctx context.Context, s *Saga) {
	if err := c.sagas.Save(ctx, s); err != nil {
		logger.FromCtx(ctx).Error("saga not persisted",
			zap.String("state", string(s.State)),
			zap.Error(err),
		)
	}
}
