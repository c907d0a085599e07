package complete

import (
	"context"
	"errors"
	"time"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/order"
	"warimas-checkout/internal/payment"
	"warimas-checkout/internal/pricing"
	"warimas-checkout/internal/user"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPaymentMissing       = errors.New("provided payment methods can not cover the checkout's total amount")
	ErrCompletionInProgress = errors.New("checkout completion is already in progress")
)

// DefaultClaimTTL bounds how long one attempt holds a checkout; it outlives
// the slowest gateway round trip.
const DefaultClaimTTL = 2 * time.Minute

const (
	outcomeCompleted      = "completed"
	outcomeReplayed       = "replayed"
	outcomeActionRequired = "action_required"
	outcomeRejected       = "rejected"
	outcomeCompensated    = "compensated"
)

type CheckoutStore interface {
	GetByToken(ctx context.Context, token uuid.UUID) (*checkout.Checkout, error)
	GetLines(ctx context.Context, token uuid.UUID) ([]checkout.Line, error)
	UpdateRedirectAndTracking(ctx context.Context, token uuid.UUID, redirectURL, trackingCode string) error
}

type AddressLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*address.Address, error)
}

type OrderFinder interface {
	GetByCheckoutToken(ctx context.Context, token uuid.UUID) (*order.Order, error)
}

type GiftCardLister interface {
	ListForCheckout(ctx context.Context, token uuid.UUID) ([]giftcard.GiftCard, error)
}

type SettingsLoader interface {
	Load(ctx context.Context) (pricing.Settings, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, in pricing.Input) (*pricing.Result, error)
}

type DraftAssembler interface {
	Assemble(ctx context.Context, in order.AssembleInput) (*order.Draft, error)
}

type OrderMaterializer interface {
	Materialize(ctx context.Context, in order.MaterializeInput) (*order.Order, bool, error)
}

type VoucherLedger interface {
	VoucherReleaser
	Apply(ctx context.Context, c *checkout.Checkout, customerEmail string) (*discount.Usage, error)
	Restore(ctx context.Context, code, customerEmail string, perCustomer bool) (*discount.Usage, error)
}

type PaymentStore interface {
	GetLastActiveForCheckout(ctx context.Context, checkoutToken uuid.UUID) (*payment.Payment, error)
}

type PaymentProcessor interface {
	PaymentReverser
	Process(ctx context.Context, in payment.ProcessInput) (*payment.Transaction, error)
	Record(ctx context.Context, p *payment.Payment, txn *payment.Transaction) error
}

type CustomerStore interface {
	GatewayCustomerID(ctx context.Context, userID uint, gateway string) (string, error)
	StoreGatewayCustomerID(ctx context.Context, userID uint, gateway, customerID string) error
}

type Deps struct {
	Checkouts    CheckoutStore
	Addresses    AddressLoader
	Orders       OrderFinder
	GiftCards    GiftCardLister
	Settings     SettingsLoader
	Prices       PriceResolver
	Assembler    DraftAssembler
	Materializer OrderMaterializer
	Vouchers     VoucherLedger
	Payments     PaymentStore
	Processor    PaymentProcessor
	Customers    CustomerStore
	Sagas        SagaRepository
	Metrics      Recorder
	// AllowedHosts restricts redirect URLs; empty allows any host.
	AllowedHosts []string
	ClaimTTL     time.Duration
}

type Input struct {
	Token       uuid.UUID
	PaymentData map[string]any
	StoreSource bool
	Discounts   []pricing.Discount
	User        *user.User

	TrackingCode string
	RedirectURL  string
	// DeclaredAmount is the total the storefront believes it is paying.
	DeclaredAmount *decimal.Decimal
	// ExistingTransaction is a provider-confirmed result to record instead
	// of calling the gateway.
	ExistingTransaction *payment.Transaction
}

type Result struct {
	Order          *order.Order
	ActionRequired bool
	ActionData     map[string]any
	RedirectURL    string
}

type Service struct {
	Deps
	compensator *Compensator
}

func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.ClaimTTL <= 0 {
		d.ClaimTTL = DefaultClaimTTL
	}
	return &Service{
		Deps:        d,
		compensator: NewCompensator(d.Vouchers, d.Processor, d.Sagas, d.Metrics),
	}
}

// CompleteCheckout turns the checkout into an order, charging its active
// payment on the way. Calling it again for a completed checkout returns the
// same order.
func (s *Service) CompleteCheckout(ctx context.Context, in Input) (res *Result, err error) {
	ctx = logger.WithCheckoutToken(ctx, in.Token.String())
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CompleteCheckout"),
	)

	start := time.Now()
	outcome := outcomeRejected
	defer func() {
		s.Metrics.ObserveCompletion(outcome, time.Since(start))
	}()

	// 1. Checkout, or the order it already became
	c, err := s.Checkouts.GetByToken(ctx, in.Token)
	if errors.Is(err, checkout.ErrCheckoutNotFound) {
		o, oerr := s.Orders.GetByCheckoutToken(ctx, in.Token)
		if oerr != nil {
			return nil, oerr
		}
		if o == nil {
			return nil, err
		}
		log.Info("checkout already completed", zap.String("order_id", o.ID.String()))
		outcome = outcomeReplayed
		return &Result{Order: o, RedirectURL: o.RedirectURL}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAddresses(ctx, c); err != nil {
		return nil, err
	}

	lines, err := s.Checkouts.GetLines(ctx, c.Token)
	if err != nil {
		return nil, err
	}

	// 2. Prepare
	if err := s.prepare(ctx, c, lines, in); err != nil {
		log.Info("checkout not ready", zap.Error(err))
		return nil, err
	}

	userID, userEmail := owner(c, in.User)
	email := c.CustomerEmail(userEmail)

	settings, err := s.Settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := s.GiftCards.ListForCheckout(ctx, c.Token)
	if err != nil {
		return nil, err
	}
	p, err := s.Payments.GetLastActiveForCheckout(ctx, c.Token)
	if err != nil {
		return nil, err
	}

	// 3. Pricing
	taxAddress := c.DeliveryAddress()
	prices, err := s.Prices.Resolve(ctx, pricing.Input{
		Checkout:        c,
		Lines:           lines,
		Discounts:       in.Discounts,
		Address:         taxAddress,
		PostalCode:      postalCode(c),
		GiftCardBalance: giftcard.TotalBalance(cards),
		Gateway:         gatewayOf(p),
		Settings:        settings,
	})
	if err != nil {
		return nil, err
	}

	// 4. Amounts, before anything reaches the gateway
	if err := checkAmounts(c.Currency, prices.Total.Gross, p, in.DeclaredAmount); err != nil {
		log.Info("payment amount rejected",
			zap.String("total", prices.Total.Gross.String()),
			zap.Error(err),
		)
		return nil, err
	}

	// 5. Draft, with the bulk stock check
	draft, err := s.Assembler.Assemble(ctx, order.AssembleInput{
		Checkout:  c,
		Lines:     lines,
		Discounts: in.Discounts,
		Prices:    prices,
		GiftCards: cards,
		Address:   taxAddress,
		UserID:    userID,
		UserEmail: email,
	})
	if err != nil {
		return nil, err
	}

	// 6. Claim, so one attempt at a time reserves and charges
	attempt := uuid.New()
	claimed, err := s.Sagas.Claim(ctx, c.Token, attempt, s.ClaimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Info("another completion attempt holds the checkout")
		return nil, ErrCompletionInProgress
	}
	defer s.unclaim(ctx, c.Token, attempt)

	// 7. Voucher
	prev, err := s.Sagas.Get(ctx, c.Token)
	if err != nil {
		return nil, err
	}
	usage, restored, err := s.reserveVoucher(ctx, c, email, prev)
	if err != nil {
		return nil, err
	}

	saga := &Saga{CheckoutToken: c.Token, State: SagaReserved, CustomerEmail: email}
	if usage != nil {
		saga.VoucherCode = usage.Voucher.Code
		saga.VoucherPerCustomer = usage.PerCustomer
		saga.VoucherOwner = &attempt
		if restored && prev.VoucherOwner != nil {
			saga.VoucherOwner = prev.VoucherOwner
		}
	}
	if p != nil {
		saga.PaymentID = &p.ID
	}
	if err := s.Sagas.Save(ctx, saga); err != nil {
		if !restored {
			s.compensator.ReleaseVoucherUsage(ctx, usage)
		}
		return nil, err
	}

	// 8. Payment, with no transaction open
	charged := false
	if p != nil {
		txn, err := s.pay(ctx, p, userID, in)
		if err != nil {
			s.compensator.Compensate(ctx, saga, usage, p, err)
			outcome = outcomeCompensated
			return nil, err
		}
		if txn != nil && txn.ActionRequired {
			log.Info("payment needs customer action", zap.Int64("payment_id", p.ID))
			outcome = outcomeActionRequired
			return &Result{ActionRequired: true, ActionData: txn.ActionRequiredData, RedirectURL: c.RedirectURL}, nil
		}
		charged = txn != nil && in.ExistingTransaction == nil
		saga.State = SagaPaid
		s.saveSaga(ctx, saga)
	}

	// 9. Order
	mi := order.MaterializeInput{Draft: draft, AutoConfirm: settings.Store.AutomaticallyConfirmOrders}
	if usage != nil {
		mi.Voucher = &usage.Voucher
	}
	o, created, err := s.Materializer.Materialize(ctx, mi)
	if err != nil {
		s.compensator.Compensate(ctx, saga, usage, p, err)
		outcome = outcomeCompensated
		return nil, err
	}
	if !created {
		saga = s.yield(ctx, saga, attempt, usage, restored, p, charged)
	}

	saga.State = SagaCompleted
	saga.OrderID = &o.ID
	s.saveSaga(ctx, saga)

	log.Info("checkout completed",
		zap.String("order_id", o.ID.String()),
		zap.Bool("created", created),
	)
	outcome = outcomeCompleted
	return &Result{Order: o, RedirectURL: c.RedirectURL}, nil
}

// CompleteFromWebhook finishes the checkout p belongs to with a transaction
// the provider reported. Payments already attached to an order only have the
// transaction recorded.
func (s *Service) CompleteFromWebhook(ctx context.Context, p *payment.Payment, txn *payment.Transaction) error {
	if p.OrderID != nil || p.CheckoutToken == nil {
		return s.Processor.Record(ctx, p, txn)
	}
	_, err := s.CompleteCheckout(ctx, Input{Token: *p.CheckoutToken, ExistingTransaction: txn})
	return err
}

func (s *Service) prepare(ctx context.Context, c *checkout.Checkout, lines []checkout.Line, in Input) error {
	if !c.ChannelActive {
		return checkout.ErrChannelInactive
	}
	if err := checkout.Validate(c, lines); err != nil {
		return err
	}
	if err := checkout.ValidateRedirectURL(in.RedirectURL, s.AllowedHosts); err != nil {
		return err
	}

	if in.RedirectURL == "" && in.TrackingCode == "" {
		return nil
	}
	if in.RedirectURL != "" {
		c.RedirectURL = in.RedirectURL
	}
	if in.TrackingCode != "" {
		c.TrackingCode = in.TrackingCode
	}
	return s.Checkouts.UpdateRedirectAndTracking(ctx, c.Token, c.RedirectURL, c.TrackingCode)
}

// reserveVoucher applies the checkout voucher. When an earlier attempt is
// still pending its recorded use is carried over instead of counted again,
// and restored reports that.
func (s *Service) reserveVoucher(ctx context.Context, c *checkout.Checkout, email string, prev *Saga) (u *discount.Usage, restored bool, err error) {
	code := ""
	if c.VoucherCode != nil {
		code = *c.VoucherCode
	}

	if prev.Pending() && prev.VoucherCode != "" && !prev.VoucherReleased {
		if prev.VoucherCode == code {
			u, err = s.Vouchers.Restore(ctx, code, prev.CustomerEmail, prev.VoucherPerCustomer)
			return u, err == nil, err
		}
		stale, err := s.Vouchers.Restore(ctx, prev.VoucherCode, prev.CustomerEmail, prev.VoucherPerCustomer)
		if err == nil {
			s.compensator.ReleaseVoucherUsage(ctx, stale)
		}
	}
	u, err = s.Vouchers.Apply(ctx, c, email)
	return u, false, err
}

func (s *Service) pay(ctx context.Context, p *payment.Payment, userID *uint, in Input) (*payment.Transaction, error) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("payment_id", p.ID),
		zap.String("gateway", p.Gateway),
	)

	if in.ExistingTransaction != nil {
		if err := s.Processor.Record(ctx, p, in.ExistingTransaction); err != nil {
			return nil, err
		}
		return in.ExistingTransaction, nil
	}

	if p.HoldsFunds() && !p.ToConfirm {
		log.Info("payment already holds funds, gateway not called")
		return nil, nil
	}

	var customerID string
	if in.StoreSource && userID != nil {
		id, err := s.Customers.GatewayCustomerID(ctx, *userID, p.Gateway)
		if err != nil {
			log.Warn("customer id lookup failed", zap.Error(err))
		}
		customerID = id
	}

	txn, err := s.Processor.Process(ctx, payment.ProcessInput{
		Payment:     p,
		CustomerID:  customerID,
		StoreSource: in.StoreSource,
		Data:        in.PaymentData,
	})
	if err != nil {
		return nil, err
	}

	if in.StoreSource && userID != nil && txn.CustomerID != "" && txn.CustomerID != customerID {
		if err := s.Customers.StoreGatewayCustomerID(ctx, *userID, p.Gateway, txn.CustomerID); err != nil {
			log.Warn("customer id not stored", zap.Error(err))
		}
	}
	return txn, nil
}

// yield settles an attempt whose order was created by another attempt. The
// saga row names what the winning order holds: a voucher use counted by a
// different attempt, or a different payment, makes this attempt's own surplus.
func (s *Service) yield(ctx context.Context, saga *Saga, attempt uuid.UUID, usage *discount.Usage, restored bool, p *payment.Payment, charged bool) *Saga {
	log := logger.FromCtx(ctx).With(zap.String("attempt", attempt.String()))

	cur, err := s.Sagas.Get(ctx, saga.CheckoutToken)
	if err != nil || cur == nil {
		log.Warn("winning saga not found, keeping this attempt's effects", zap.Error(err))
		return saga
	}

	if usage != nil && !restored && (cur.VoucherOwner == nil || *cur.VoucherOwner != attempt) {
		log.Info("releasing surplus voucher use", zap.String("voucher", usage.Voucher.Code))
		s.compensator.ReleaseVoucherUsage(ctx, usage)
	}
	if charged && cur.PaymentID != nil && *cur.PaymentID != p.ID {
		log.Warn("reversing surplus charge", zap.Int64("payment_id", p.ID))
		s.compensator.VoidOrRefund(ctx, p)
	}
	return cur
}

func (s *Service) unclaim(ctx context.Context, token, attempt uuid.UUID) {
	if err := s.Sagas.Unclaim(context.WithoutCancel(ctx), token, attempt); err != nil {
		logger.FromCtx(ctx).Warn("checkout claim not released", zap.Error(err))
	}
}

func (s *Service) saveSaga(ctx context.Context, saga *Saga) {
	if err := s.Sagas.Save(ctx, saga); err != nil {
		logger.FromCtx(ctx).Error("saga not persisted",
			zap.String("state", string(saga.State)),
			zap.Error(err),
		)
	}
}

// checkAmounts rejects a total the payment or the storefront disagrees with.
func checkAmounts(currency string, total decimal.Decimal, p *payment.Payment, declared *decimal.Decimal) error {
	if declared != nil {
		if err := payment.ValidateAmount(*declared, total, currency); err != nil {
			return err
		}
	}
	if p == nil {
		if total.IsPositive() {
			return ErrPaymentMissing
		}
		return nil
	}
	return payment.ValidateAmount(p.Total, total, currency)
}

// loadAddresses fills the checkout addresses that are referenced by id only.
func (s *Service) loadAddresses(ctx context.Context, c *checkout.Checkout) error {
	if s.Addresses == nil {
		return nil
	}
	if c.BillingAddress == nil && c.BillingAddressID != nil {
		a, err := s.Addresses.GetByID(ctx, *c.BillingAddressID)
		if err != nil && !errors.Is(err, address.ErrAddressNotFound) {
			return err
		}
		c.BillingAddress = a
	}
	if c.ShippingAddress == nil && c.ShippingAddressID != nil {
		a, err := s.Addresses.GetByID(ctx, *c.ShippingAddressID)
		if err != nil && !errors.Is(err, address.ErrAddressNotFound) {
			return err
		}
		c.ShippingAddress = a
	}
	return nil
}

func owner(c *checkout.Checkout, u *user.User) (*uint, string) {
	if u != nil {
		id := u.ID
		return &id, u.Email
	}
	return c.UserID, ""
}

// postalCode selects the delivery band: billing first, then shipping.
func postalCode(c *checkout.Checkout) string {
	for _, a := range []*address.Address{c.BillingAddress, c.ShippingAddress} {
		if a != nil && a.Postal != "" {
			return a.Postal
		}
	}
	return ""
}

func gatewayOf(p *payment.Payment) string {
	if p == nil {
		return ""
	}
	return p.Gateway
}
