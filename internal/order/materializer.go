package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/db"
	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/inventory"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"
	"warimas-checkout/internal/notification"
	"warimas-checkout/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutStore interface {
	LockForCompletion(ctx context.Context, q db.Querier, token uuid.UUID) (bool, error)
	Delete(ctx context.Context, q db.Querier, token uuid.UUID) error
}

type AddressStore interface {
	CopyForOrder(ctx context.Context, q db.Querier, a *address.Address) (*address.Address, error)
	StoreForUser(ctx context.Context, q db.Querier, userID uint, a *address.Address) error
}

type StockAllocator interface {
	AllocateStocks(ctx context.Context, q db.Querier, allocs []inventory.Allocation, country, channel string) error
}

type GiftCardStore interface {
	ListForCheckoutForUpdate(ctx context.Context, q db.Querier, token uuid.UUID) ([]giftcard.GiftCard, error)
	Consume(ctx context.Context, q db.Querier, orderID uuid.UUID, card giftcard.GiftCard, amount decimal.Decimal) error
}

type PaymentLinker interface {
	AssignToOrder(ctx context.Context, q db.Querier, checkoutToken, orderID uuid.UUID) error
	CapturedTotalForOrder(ctx context.Context, q db.Querier, orderID uuid.UUID) (decimal.Decimal, error)
}

type EventOutbox interface {
	Enqueue(ctx context.Context, q db.Querier, eventType, aggregateID string, payload any) error
}

type MaterializerDeps struct {
	Orders    Repository
	Checkouts CheckoutStore
	Addresses AddressStore
	Stock     StockAllocator
	GiftCards GiftCardStore
	Payments  PaymentLinker
	Outbox    EventOutbox
	// Notify runs after a successful commit, typically waking the outbox poller.
	Notify func()
}

type MaterializeInput struct {
	Draft *Draft
	// Voucher is the voucher applied for this completion, if any. Its
	// definition is frozen onto the order discount.
	Voucher     *discount.Voucher
	AutoConfirm bool
}

// Materializer persists an order draft and retires its checkout in one
// transaction.
type Materializer struct {
	db     db.TxBeginner
	deps   MaterializerDeps
	number func() string
}

func NewMaterializer(conn db.TxBeginner, deps MaterializerDeps) *Materializer {
	return &Materializer{db: conn, deps: deps, number: utils.GenerateOrderNumber}
}

// Materialize returns the order for the draft's checkout and whether this
// call created it. An order that already exists is returned unchanged.
func (m *Materializer) Materialize(ctx context.Context, in MaterializeInput) (*Order, bool, error) {
	d := in.Draft
	if d == nil || len(d.Lines) == 0 {
		return nil, false, ErrEmptyDraft
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "materializer"),
		zap.String("method", "Materialize"),
		zap.String("checkout_token", d.CheckoutToken.String()),
	)

	var (
		result  *Order
		created bool
	)
	err := db.RunInTx(ctx, m.db, func(tx *db.Tx) error {
		// 1. Serialize on the checkout, then look for an earlier order
		locked, err := m.deps.Checkouts.LockForCompletion(ctx, tx, d.CheckoutToken)
		if err != nil {
			return fmt.Errorf("lock checkout: %w", err)
		}
		existing, err := m.deps.Orders.GetByCheckoutTokenForUpdate(ctx, tx, d.CheckoutToken)
		if err != nil {
			return fmt.Errorf("lookup order: %w", err)
		}
		if existing != nil {
			result = existing
			return nil
		}
		if !locked {
			return checkout.ErrCheckoutNotFound
		}

		// 2. Order and voucher discount
		o, err := m.insertOrder(ctx, tx, in)
		if err != nil {
			return err
		}

		// 3. Lines with option snapshots
		allocs := make([]inventory.Allocation, 0, len(d.Lines))
		o.Lines = make([]Line, 0, len(d.Lines))
		for _, l := range d.Lines {
			l.ID = uuid.New()
			l.OrderID = o.ID
			o.Lines = append(o.Lines, l)
			allocs = append(allocs, inventory.Allocation{OrderLineID: l.ID, VariantID: l.VariantID, Quantity: l.Quantity})
		}
		if err := m.deps.Orders.InsertLines(ctx, tx, o.Lines); err != nil {
			return fmt.Errorf("insert lines: %w", err)
		}

		// 4. Stock
		if err := m.deps.Stock.AllocateStocks(ctx, tx, allocs, d.Country, d.ChannelSlug); err != nil {
			var short *inventory.InsufficientStockError
			if errors.Is(err, inventory.ErrAllocationMismatch) && errors.As(err, &short) {
				log.Error("stock changed between validation and allocation",
					zap.String("order_id", o.ID.String()),
					zap.Error(err),
				)
				return short
			}
			return fmt.Errorf("allocate stocks: %w", err)
		}

		// 5. Gift cards
		if err := m.consumeGiftCards(ctx, tx, o.ID, d); err != nil {
			return err
		}

		// 6. Payments
		if err := m.deps.Payments.AssignToOrder(ctx, tx, d.CheckoutToken, o.ID); err != nil {
			return fmt.Errorf("assign payments: %w", err)
		}

		// 7. Total paid
		paid, err := m.deps.Payments.CapturedTotalForOrder(ctx, tx, o.ID)
		if err != nil {
			return fmt.Errorf("captured total: %w", err)
		}
		if !paid.IsZero() {
			if err := m.deps.Orders.UpdateTotalPaid(ctx, tx, o.ID, paid); err != nil {
				return fmt.Errorf("update total paid: %w", err)
			}
		}
		o.TotalPaid = paid

		// 8. Retire the checkout
		if err := m.deps.Checkouts.Delete(ctx, tx, d.CheckoutToken); err != nil {
			return fmt.Errorf("delete checkout: %w", err)
		}

		// 9. Events, visible to the poller only after commit
		if err := m.enqueueEvents(ctx, tx, o); err != nil {
			return fmt.Errorf("enqueue events: %w", err)
		}
		if m.deps.Notify != nil {
			tx.AfterCommit(m.deps.Notify)
		}

		result = o
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		log.Info("order created",
			zap.String("order_id", result.ID.String()),
			zap.String("number", result.Number),
			zap.String("total", result.Total.Gross.String()),
		)
	} else {
		log.Info("order already exists", zap.String("order_id", result.ID.String()))
	}
	return result, created, nil
}

func (m *Materializer) insertOrder(ctx context.Context, tx *db.Tx, in MaterializeInput) (*Order, error) {
	d := in.Draft

	status := StatusUnconfirmed
	if in.AutoConfirm {
		status = StatusUnfulfilled
	}

	o := &Order{
		ID:                 uuid.New(),
		Number:             m.number(),
		CheckoutToken:      d.CheckoutToken,
		Status:             status,
		Origin:             OriginCheckout,
		UserID:             d.UserID,
		UserEmail:          d.UserEmail,
		ChannelSlug:        d.ChannelSlug,
		Currency:           d.Currency,
		LanguageCode:       d.LanguageCode,
		ShippingMethodID:   d.ShippingMethodID,
		ShippingMethodName: d.ShippingMethodName,
		ShippingPrice:      d.ShippingPrice,
		ShippingTaxRate:    d.ShippingTaxRate,
		Total:              d.Total,
		Undiscounted:       d.Undiscounted,
		TotalPaid:          decimal.Zero,
		DeliveryFee:        d.DeliveryFee,
		TransactionCost:    d.TransactionCost,
		CustomerNote:       d.CustomerNote,
		TrackingCode:       d.TrackingCode,
		RedirectURL:        d.RedirectURL,
		Metadata:           d.Metadata,
		PrivateMetadata:    d.PrivateMetadata,
	}

	// Address snapshots
	billing, err := m.snapshotAddress(ctx, tx, d.BillingAddress, d.UserID)
	if err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}
	shipping, err := m.snapshotAddress(ctx, tx, d.ShippingAddress, d.UserID)
	if err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}
	if billing != nil {
		o.BillingAddressID = &billing.ID
	}
	if shipping != nil {
		o.ShippingAddressID = &shipping.ID
	}

	if err := m.deps.Orders.Insert(ctx, tx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if d.HasVoucherDiscount() {
		disc, err := voucherDiscount(o.ID, d, in.Voucher)
		if err != nil {
			return nil, err
		}
		if err := m.deps.Orders.InsertDiscount(ctx, tx, disc); err != nil {
			return nil, fmt.Errorf("insert discount: %w", err)
		}
		o.Discounts = append(o.Discounts, *disc)
	}
	return o, nil
}

func (m *Materializer) snapshotAddress(ctx context.Context, tx *db.Tx, a *address.Address, userID *uint) (*address.Address, error) {
	if a == nil {
		return nil, nil
	}
	if userID != nil {
		if err := m.deps.Addresses.StoreForUser(ctx, tx, *userID, a); err != nil {
			return nil, err
		}
	}
	return m.deps.Addresses.CopyForOrder(ctx, tx, a)
}

func voucherDiscount(orderID uuid.UUID, d *Draft, v *discount.Voucher) (*Discount, error) {
	disc := &Discount{
		OrderID:        orderID,
		Type:           DiscountTypeVoucher,
		ValueType:      discount.ValueTypeFixed,
		Value:          d.Discount,
		Amount:         d.Discount,
		Currency:       d.Currency,
		Name:           d.DiscountName,
		TranslatedName: d.TranslatedDiscountName,
		VoucherCode:    *d.VoucherCode,
	}
	if v == nil {
		return disc, nil
	}

	frozen, err := json.Marshal(VoucherSnapshot{
		ID:                   v.ID,
		Code:                 v.Code,
		Name:                 v.Name,
		DiscountValueType:    v.DiscountValueType,
		DiscountValue:        v.DiscountValue,
		ApplyOncePerCustomer: v.ApplyOncePerCustomer,
		UsageLimit:           v.UsageLimit,
	})
	if err != nil {
		return nil, err
	}
	disc.Voucher = frozen
	if disc.Name == "" {
		disc.Name = v.Name
	}
	return disc, nil
}

func (m *Materializer) consumeGiftCards(ctx context.Context, tx *db.Tx, orderID uuid.UUID, d *Draft) error {
	cards, err := m.deps.GiftCards.ListForCheckoutForUpdate(ctx, tx, d.CheckoutToken)
	if err != nil {
		return fmt.Errorf("lock gift cards: %w", err)
	}
	for _, c := range giftcard.Plan(cards, d.TotalPriceLeft, d.Currency) {
		if !c.Amount.IsPositive() {
			continue
		}
		if err := m.deps.GiftCards.Consume(ctx, tx, orderID, c.Card, c.Amount); err != nil {
			return fmt.Errorf("consume gift card %d: %w", c.Card.ID, err)
		}
	}
	return nil
}

func (m *Materializer) enqueueEvents(ctx context.Context, tx *db.Tx, o *Order) error {
	if m.deps.Outbox == nil {
		return nil
	}
	aggregate := o.ID.String()

	if err := m.deps.Outbox.Enqueue(ctx, tx, notification.EventOrderCreated, aggregate, notification.OrderCreatedPayload{
		OrderID:       o.ID,
		Number:        o.Number,
		CheckoutToken: o.CheckoutToken,
		Status:        string(o.Status),
		UserEmail:     o.UserEmail,
		TotalGross:    o.Total.Gross.StringFixed(money.MinorUnits(o.Currency)),
		Currency:      o.Currency,
		CreatedAt:     o.CreatedAt,
	}); err != nil {
		return err
	}

	if o.UserEmail == "" {
		return nil
	}
	return m.deps.Outbox.Enqueue(ctx, tx, notification.EventOrderConfirmationEmail, aggregate, notification.ConfirmationEmailPayload{
		OrderID:      o.ID,
		Number:       o.Number,
		Email:        o.UserEmail,
		LanguageCode: o.LanguageCode,
		RedirectURL:  o.RedirectURL,
	})
}
