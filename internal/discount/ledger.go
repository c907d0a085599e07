package discount

import (
	"context"
	"fmt"
	"time"

	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

// Ledger keeps voucher usage counters in step with completed orders.
type Ledger struct {
	db   db.TxBeginner
	repo Repository
	now  func() time.Time
}

func NewLedger(conn db.TxBeginner, repo Repository) *Ledger {
	return &Ledger{db: conn, repo: repo, now: time.Now}
}

// Apply locks the checkout's voucher, checks its limits and records one use.
// A checkout without a voucher yields a nil usage.
func (l *Ledger) Apply(ctx context.Context, c *checkout.Checkout, customerEmail string) (*Usage, error) {
	if c.VoucherCode == nil || *c.VoucherCode == "" {
		return nil, nil
	}
	code := *c.VoucherCode

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Apply"),
		zap.String("voucher_code", code),
	)

	var usage *Usage
	err := db.RunInTx(ctx, l.db, func(tx *db.Tx) error {
		// 1. Lock voucher
		v, err := l.repo.GetActiveByCodeForUpdate(ctx, tx, code, l.now())
		if err != nil {
			return fmt.Errorf("lock voucher: %w", err)
		}
		if v == nil {
			return ErrVoucherExpired
		}

		// 2. Limits
		if v.UsageLimit != nil && v.Used >= *v.UsageLimit {
			return ErrVoucherNotApplicable
		}

		u := &Usage{Voucher: *v, CustomerEmail: customerEmail}
		if v.ApplyOncePerCustomer {
			if customerEmail == "" {
				return ErrVoucherNotApplicable
			}
			used, err := l.repo.CustomerHasUsed(ctx, tx, v.ID, customerEmail)
			if err != nil {
				return fmt.Errorf("check customer usage: %w", err)
			}
			if used {
				return ErrVoucherNotApplicable
			}
			if err := l.repo.AddCustomer(ctx, tx, v.ID, customerEmail); err != nil {
				return fmt.Errorf("add voucher customer: %w", err)
			}
			u.PerCustomer = true
		}

		// 3. Count the use
		if err := l.repo.IncreaseUsage(ctx, tx, v.ID); err != nil {
			return fmt.Errorf("increase voucher usage: %w", err)
		}
		u.Voucher.Used++
		usage = u
		return nil
	})
	if err != nil {
		log.Info("voucher not applied", zap.Error(err))
		return nil, err
	}

	log.Info("voucher usage recorded", zap.Int64("voucher_id", usage.Voucher.ID))
	return usage, nil
}

// Restore rebuilds the usage of a voucher that was applied by an earlier,
// still pending attempt for the same checkout. Nothing is written.
func (l *Ledger) Restore(ctx context.Context, code, customerEmail string, perCustomer bool) (*Usage, error) {
	v, err := l.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVoucherExpired
	}
	return &Usage{Voucher: *v, CustomerEmail: customerEmail, PerCustomer: perCustomer}, nil
}

// Release gives back a use recorded by Apply. It is a no-op for a nil or an
// already released usage; a failed release can be retried.
func (l *Ledger) Release(ctx context.Context, u *Usage) error {
	if u == nil || !u.released.CompareAndSwap(false, true) {
		return nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Release"),
		zap.Int64("voucher_id", u.Voucher.ID),
	)

	err := db.RunInTx(ctx, l.db, func(tx *db.Tx) error {
		if err := l.repo.DecreaseUsage(ctx, tx, u.Voucher.ID); err != nil {
			return fmt.Errorf("decrease voucher usage: %w", err)
		}
		if u.PerCustomer {
			if err := l.repo.RemoveCustomer(ctx, tx, u.Voucher.ID, u.CustomerEmail); err != nil {
				return fmt.Errorf("remove voucher customer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		u.released.Store(false)
		log.Error("release voucher failed", zap.Error(err))
		return err
	}

	log.Info("voucher usage released")
	return nil
}
