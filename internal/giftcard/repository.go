package giftcard

import (
	"context"
	"database/sql"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	ListForCheckout(ctx context.Context, token uuid.UUID) ([]GiftCard, error)
	// ListForCheckoutForUpdate row-locks the attached cards inside q.
	ListForCheckoutForUpdate(ctx context.Context, q db.Querier, token uuid.UUID) ([]GiftCard, error)
	// Consume debits amount from the card and links it to the order.
	Consume(ctx context.Context, q db.Querier, orderID uuid.UUID, card GiftCard, amount decimal.Decimal) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectCheckoutCards = `
	SELECT g.id, g.code, g.current_balance, g.currency, g.expiry_date, g.is_active, g.created_at
	FROM gift_cards g
	JOIN checkout_gift_cards cg ON cg.gift_card_id = g.id
	WHERE cg.checkout_token = $1
	ORDER BY g.expiry_date ASC NULLS LAST, g.created_at ASC, g.id ASC
`

func (r *repository) ListForCheckout(ctx context.Context, token uuid.UUID) ([]GiftCard, error) {
	return r.list(ctx, r.db, "ListForCheckout", selectCheckoutCards, token)
}

func (r *repository) ListForCheckoutForUpdate(ctx context.Context, q db.Querier, token uuid.UUID) ([]GiftCard, error) {
	return r.list(ctx, q, "ListForCheckoutForUpdate", selectCheckoutCards+" FOR UPDATE OF g", token)
}

func (r *repository) list(ctx context.Context, q db.Querier, method, query string, token uuid.UUID) ([]GiftCard, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "GiftCard"),
		zap.String("method", method),
	)

	rows, err := q.QueryContext(ctx, query, token)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var cards []GiftCard
	for rows.Next() {
		var c GiftCard
		if err := rows.Scan(&c.ID, &c.Code, &c.CurrentBalance, &c.Currency, &c.ExpiryDate, &c.IsActive, &c.CreatedAt); err != nil {
			log.Error("scan failed", zap.Error(err))
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *repository) Consume(ctx context.Context, q db.Querier, orderID uuid.UUID, card GiftCard, amount decimal.Decimal) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "GiftCard"),
		zap.String("method", "Consume"),
		zap.Int64("gift_card_id", card.ID),
		zap.String("amount", amount.String()),
	)

	const debit = `
		UPDATE gift_cards
		SET current_balance = current_balance - $2, last_used_on = NOW()
		WHERE id = $1 AND current_balance >= $2
	`
	res, err := q.ExecContext(ctx, debit, card.ID, amount)
	if err != nil {
		log.Error("debit failed", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Error("gift card balance changed under lock")
		return ErrGiftCardInactive
	}

	const link = `
		INSERT INTO order_gift_cards (order_id, gift_card_id, amount_used)
		VALUES ($1, $2, $3)
	`
	if _, err := q.ExecContext(ctx, link, orderID, card.ID, amount); err != nil {
		log.Error("link to order failed", zap.Error(err))
		return err
	}
	return nil
}
