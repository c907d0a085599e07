package complete

import (
	"context"
	"errors"
	"time"

	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errAbandoned = errors.New("completion abandoned before an order was created")

type PaymentLookup interface {
	GetByID(ctx context.Context, id int64) (*payment.Payment, error)
}

// Reconciler settles sagas a crashed or failed completion left in paid or
// compensating: it marks them completed when the order exists, otherwise it
// compensates again.
type Reconciler struct {
	sagas       SagaRepository
	orders      OrderFinder
	payments    PaymentLookup
	vouchers    VoucherLedger
	compensator *Compensator
	staleAfter  time.Duration
	claimTTL    time.Duration
	now         func() time.Time
}

func NewReconciler(svc *Service, payments PaymentLookup, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		sagas:       svc.Sagas,
		orders:      svc.Orders,
		payments:    payments,
		vouchers:    svc.Vouchers,
		compensator: svc.compensator,
		staleAfter:  staleAfter,
		claimTTL:    svc.ClaimTTL,
		now:         time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.L().Info("saga reconciler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				logger.L().Error("saga reconciliation failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.L().Info("saga reconciler stopped")
			return
		}
	}
}

// ReconcileOnce settles one batch of stuck sagas and returns how many reached
// a final state.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	stuck, err := r.sagas.ListStuck(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range stuck {
		if r.settle(ctx, &stuck[i]) {
			settled++
		}
	}
	return settled, nil
}

func (r *Reconciler) settle(ctx context.Context, s *Saga) bool {
	ctx = logger.WithCheckoutToken(ctx, s.CheckoutToken.String())
	log := logger.FromCtx(ctx).With(
		zap.String("component", "saga_reconciler"),
		zap.String("state", string(s.State)),
	)

	attempt := uuid.New()
	claimed, err := r.sagas.Claim(ctx, s.CheckoutToken, attempt, r.claimTTL)
	if err != nil {
		log.Error("saga claim failed", zap.Error(err))
		return false
	}
	if !claimed {
		log.Info("completion attempt in progress, saga skipped")
		return false
	}
	defer func() {
		if err := r.sagas.Unclaim(context.WithoutCancel(ctx), s.CheckoutToken, attempt); err != nil {
			log.Warn("saga claim not released", zap.Error(err))
		}
	}()

	o, err := r.orders.GetByCheckoutToken(ctx, s.CheckoutToken)
	if err != nil {
		log.Error("order lookup failed", zap.Error(err))
		return false
	}
	if o != nil {
		s.State = SagaCompleted
		s.OrderID = &o.ID
		r.compensator.save(ctx, s)
		log.Info("saga completed by existing order", zap.String("order_id", o.ID.String()))
		return true
	}

	var u *discount.Usage
	if s.VoucherCode != "" && !s.VoucherReleased {
		if u, err = r.vouchers.Restore(ctx, s.VoucherCode, s.CustomerEmail, s.VoucherPerCustomer); err != nil {
			log.Error("voucher usage not restored", zap.Error(err))
			return false
		}
	}

	var p *payment.Payment
	if s.PaymentID != nil {
		if p, err = r.payments.GetByID(ctx, *s.PaymentID); err != nil {
			log.Error("payment lookup failed", zap.Int64("payment_id", *s.PaymentID), zap.Error(err))
			return false
		}
	}

	cause := errAbandoned
	if s.LastError != "" {
		cause = errors.New(s.LastError)
	}
	r.compensator.Compensate(ctx, s, u, p, cause)
	return s.State == SagaCompensated
}
