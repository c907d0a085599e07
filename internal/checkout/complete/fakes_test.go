package complete

import (
	"context"
	"sync"
	"time"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/order"
	"warimas-checkout/internal/payment"
	"warimas-checkout/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// store is the shared state behind the checkout, order and payment fakes.
type store struct {
	mu       sync.Mutex
	checkout *checkout.Checkout
	lines    []checkout.Line
	order    *order.Order
	payment  *payment.Payment
	cards    []giftcard.GiftCard
	redirect string
	tracking string
}

type fakeCheckouts struct{ s *store }

func (f fakeCheckouts) GetByToken(_ context.Context, token uuid.UUID) (*checkout.Checkout, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.checkout == nil || f.s.checkout.Token != token {
		return nil, checkout.ErrCheckoutNotFound
	}
	c := *f.s.checkout
	return &c, nil
}
func (f fakeCheckouts) GetLines(context.Context, uuid.UUID) ([]checkout.Line, error) {
	return f.s.lines, nil
}
func (f fakeCheckouts) UpdateRedirectAndTracking(_ context.Context, _ uuid.UUID, redirectURL, trackingCode string) error {
	f.s.redirect, f.s.tracking = redirectURL, trackingCode
	return nil
}

type fakeOrders struct{ s *store }

func (f fakeOrders) GetByCheckoutToken(_ context.Context, token uuid.UUID) (*order.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.order == nil || f.s.order.CheckoutToken != token {
		return nil, nil
	}
	return f.s.order, nil
}

type fakeGiftCards struct{ s *store }

func (f fakeGiftCards) ListForCheckout(context.Context, uuid.UUID) ([]giftcard.GiftCard, error) {
	return f.s.cards, nil
}

type fakePayments struct{ s *store }

func (f fakePayments) GetLastActiveForCheckout(context.Context, uuid.UUID) (*payment.Payment, error) {
	return f.s.payment, nil
}
func (f fakePayments) GetByID(_ context.Context, id int64) (*payment.Payment, error) {
	if f.s.payment == nil || f.s.payment.ID != id {
		return nil, payment.ErrPaymentNotFound
	}
	return f.s.payment, nil
}

type fakeSettings struct{ settings pricing.Settings }

func (f fakeSettings) Load(context.Context) (pricing.Settings, error) {
	return f.settings, nil
}

type fakeAssembler struct {
	calls int
	err   error
}

func (f *fakeAssembler) Assemble(_ context.Context, in order.AssembleInput) (*order.Draft, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &order.Draft{
		CheckoutToken: in.Checkout.Token,
		UserEmail:     in.UserEmail,
		Currency:      in.Checkout.Currency,
		Total:         in.Prices.Total,
		RedirectURL:   in.Checkout.RedirectURL,
		Lines:         []order.Line{{VariantID: 1, Quantity: 2}},
	}, nil
}

// fakeMaterializer creates the order and deletes the checkout, like the
// real transaction does on commit.
type fakeMaterializer struct {
	s     *store
	calls int
	err   error
	got   order.MaterializeInput
}

func (f *fakeMaterializer) Materialize(_ context.Context, in order.MaterializeInput) (*order.Order, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.calls++
	f.got = in
	if f.err != nil {
		return nil, false, f.err
	}
	if f.s.order != nil {
		return f.s.order, false, nil
	}
	status := order.StatusUnconfirmed
	if in.AutoConfirm {
		status = order.StatusUnfulfilled
	}
	o := &order.Order{
		ID:            uuid.New(),
		Number:        "ORD-1",
		CheckoutToken: in.Draft.CheckoutToken,
		Status:        status,
		Total:         in.Draft.Total,
		RedirectURL:   in.Draft.RedirectURL,
	}
	f.s.order = o
	f.s.checkout = nil
	if f.s.payment != nil {
		f.s.payment.OrderID = &o.ID
	}
	return o, true, nil
}

// fakeLedger counts uses per voucher code.
type fakeLedger struct {
	used     map[string]int
	applies  int
	restores int
	failRel  bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{used: map[string]int{}}
}

func (l *fakeLedger) Apply(_ context.Context, c *checkout.Checkout, email string) (*discount.Usage, error) {
	if c.VoucherCode == nil {
		return nil, nil
	}
	l.applies++
	l.used[*c.VoucherCode]++
	return &discount.Usage{Voucher: discount.Voucher{ID: 1, Code: *c.VoucherCode}, CustomerEmail: email}, nil
}
func (l *fakeLedger) Restore(_ context.Context, code, email string, perCustomer bool) (*discount.Usage, error) {
	l.restores++
	return &discount.Usage{Voucher: discount.Voucher{ID: 1, Code: code}, CustomerEmail: email, PerCustomer: perCustomer}, nil
}
func (l *fakeLedger) Release(_ context.Context, u *discount.Usage) error {
	if l.failRel {
		return assertErr("release failed")
	}
	l.used[u.Voucher.Code]--
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, in payment.ProcessInput) (*payment.Transaction, error) {
	args := m.Called(ctx, in)
	txn, _ := args.Get(0).(*payment.Transaction)
	return txn, args.Error(1)
}
func (m *MockProcessor) Record(ctx context.Context, p *payment.Payment, txn *payment.Transaction) error {
	return m.Called(ctx, p, txn).Error(0)
}
func (m *MockProcessor) RefundOrVoid(ctx context.Context, p *payment.Payment) error {
	return m.Called(ctx, p).Error(0)
}

type fakeCustomers struct {
	ids    map[uint]string
	stored []string
}

func (f *fakeCustomers) GatewayCustomerID(_ context.Context, userID uint, _ string) (string, error) {
	return f.ids[userID], nil
}
func (f *fakeCustomers) StoreGatewayCustomerID(_ context.Context, _ uint, _, customerID string) error {
	f.stored = append(f.stored, customerID)
	return nil
}

type memorySagas struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]Saga
	trail  []SagaState
	stuck  []Saga
	claims map[uuid.UUID]uuid.UUID
	// expired makes every held claim count as lapsed.
	expired bool
}

func newMemorySagas() *memorySagas {
	return &memorySagas{rows: map[uuid.UUID]Saga{}, claims: map[uuid.UUID]uuid.UUID{}}
}

func (m *memorySagas) Get(_ context.Context, token uuid.UUID) (*Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
func (m *memorySagas) Save(_ context.Context, s *Saga) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rows[s.CheckoutToken]; ok && cur.State == SagaCompleted {
		return nil
	}
	m.rows[s.CheckoutToken] = *s
	m.trail = append(m.trail, s.State)
	return nil
}
func (m *memorySagas) Claim(_ context.Context, token, attempt uuid.UUID, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.claims[token]; held && !m.expired {
		return false, nil
	}
	m.claims[token] = attempt
	return true, nil
}
func (m *memorySagas) Unclaim(_ context.Context, token, attempt uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[token] == attempt {
		delete(m.claims, token)
	}
	return nil
}
func (m *memorySagas) ListStuck(context.Context, time.Time) ([]Saga, error) {
	return m.stuck, nil
}

type outcomeRecorder struct {
	outcomes      []string
	compensations map[string]int
}

func (r *outcomeRecorder) ObserveCompletion(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}
func (r *outcomeRecorder) ObserveCompensation(step string, _ bool) {
	if r.compensations == nil {
		r.compensations = map[string]int{}
	}
	r.compensations[step]++
}

type fixture struct {
	store     *store
	ledger    *fakeLedger
	processor *MockProcessor
	customers *fakeCustomers
	sagas     *memorySagas
	assembler *fakeAssembler
	material  *fakeMaterializer
	recorder  *outcomeRecorder
	svc       *Service
}

// newFixture builds a pickup checkout of 2 x 20.00 with a 5.00 voucher
// discount and an active 35.00 payment.
type fakeAddresses map[uuid.UUID]*address.Address

func (f fakeAddresses) GetByID(_ context.Context, id uuid.UUID) (*address.Address, error) {
	a, ok := f[id]
	if !ok {
		return nil, address.ErrAddressNotFound
	}
	return a, nil
}

func newFixture() *fixture {
	code := "SAVE5"
	uid := uint(7)
	token := uuid.New()
	s := &store{
		checkout: &checkout.Checkout{
			Token:          token,
			UserID:         &uid,
			Email:          "buyer@example.com",
			ChannelSlug:    "default",
			ChannelActive:  true,
			Currency:       "USD",
			Country:        "ID",
			BillingAddress: &address.Address{City: "Jakarta", Postal: "12345"},
			VoucherCode:    &code,
			Discount:       dec("5.00"),
			OrderType:      checkout.OrderTypePickup,
		},
		lines: []checkout.Line{
			{ID: uuid.New(), Quantity: 2, Variant: checkout.Variant{ID: 1, ProductID: 10, Price: dec("20.00")}},
		},
		payment: &payment.Payment{
			ID:            11,
			Gateway:       payment.GatewayStripe,
			IsActive:      true,
			ChargeStatus:  payment.ChargeNotCharged,
			Total:         dec("35.00"),
			Currency:      "USD",
			CheckoutToken: &token,
		},
	}

	f := &fixture{
		store:     s,
		ledger:    newFakeLedger(),
		processor: &MockProcessor{},
		customers: &fakeCustomers{ids: map[uint]string{}},
		sagas:     newMemorySagas(),
		assembler: &fakeAssembler{},
		material:  &fakeMaterializer{s: s},
		recorder:  &outcomeRecorder{},
	}
	f.svc = NewService(Deps{
		Checkouts:    fakeCheckouts{s},
		Orders:       fakeOrders{s},
		GiftCards:    fakeGiftCards{s},
		Settings:     fakeSettings{pricing.Settings{Store: pricing.StoreSettings{AutomaticallyConfirmOrders: true}}},
		Prices:       pricing.NewResolver(pricing.NewFlatTaxOracle(decimal.Zero)),
		Assembler:    f.assembler,
		Materializer: f.material,
		Vouchers:     f.ledger,
		Payments:     fakePayments{s},
		Processor:    f.processor,
		Customers:    f.customers,
		Sagas:        f.sagas,
		Metrics:      f.recorder,
		AllowedHosts: []string{"shop.example.com"},
	})
	return f
}

func (f *fixture) token() uuid.UUID {
	return *f.store.payment.CheckoutToken
}

func captured(amount string) *payment.Transaction {
	return &payment.Transaction{Kind: payment.KindCapture, IsSuccess: true, Amount: dec(amount), Currency: "USD"}
}

func orderInputFor(f *fixture) order.MaterializeInput {
	return order.MaterializeInput{Draft: &order.Draft{CheckoutToken: f.token(), Currency: "USD"}}
}
