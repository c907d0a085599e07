package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	GatewayDummy  = "mirumee.payments.dummy"
	GatewayStripe = "mirumee.payments.stripe"
	GatewayXendit = "warimas.payments.xendit"
)

type ChargeStatus string

const (
	ChargeNotCharged        ChargeStatus = "not-charged"
	ChargePending           ChargeStatus = "pending"
	ChargePartiallyCharged  ChargeStatus = "partially-charged"
	ChargeFullyCharged      ChargeStatus = "fully-charged"
	ChargePartiallyRefunded ChargeStatus = "partially-refunded"
	ChargeFullyRefunded     ChargeStatus = "fully-refunded"
	ChargeRefused           ChargeStatus = "refused"
	ChargeCancelled         ChargeStatus = "cancelled"
)

type TransactionKind string

const (
	KindAuth            TransactionKind = "auth"
	KindCapture         TransactionKind = "capture"
	KindVoid            TransactionKind = "void"
	KindRefund          TransactionKind = "refund"
	KindConfirm         TransactionKind = "confirm"
	KindPending         TransactionKind = "pending"
	KindActionToConfirm TransactionKind = "action_to_confirm"
)

type Payment struct {
	ID      int64
	Gateway string
	// Token is the client-side payment method reference.
	Token     string
	IsActive  bool
	ToConfirm bool

	ChargeStatus   ChargeStatus
	Authorized     bool
	Total          decimal.Decimal
	CapturedAmount decimal.Decimal
	Currency       string

	CustomerEmail string
	CheckoutToken *uuid.UUID
	OrderID       *uuid.UUID
	PSPReference  string
	ReturnURL     string

	CreatedAt time.Time
}

// CanVoid reports whether an authorization is still open on the provider.
func (p *Payment) CanVoid() bool {
	if !p.IsActive || !p.Authorized {
		return false
	}
	return p.ChargeStatus == ChargeNotCharged || p.ChargeStatus == ChargePending
}

func (p *Payment) CanRefund() bool {
	if !p.IsActive || !p.CapturedAmount.IsPositive() {
		return false
	}
	switch p.ChargeStatus {
	case ChargePartiallyCharged, ChargeFullyCharged, ChargePartiallyRefunded:
		return true
	}
	return false
}

// HoldsFunds reports whether a reversal is needed to release the customer's money.
func (p *Payment) HoldsFunds() bool {
	return p.CanVoid() || p.CanRefund()
}

// HasCaptured reports whether txn repeats a capture already applied to p,
// as when a provider webhook reports a charge the request captured itself.
func (p *Payment) HasCaptured(txn *Transaction) bool {
	if txn.Kind != KindCapture || !txn.IsSuccess || txn.PSPReference == "" {
		return false
	}
	if txn.PSPReference != p.PSPReference {
		return false
	}
	switch p.ChargeStatus {
	case ChargeFullyCharged, ChargePartiallyRefunded, ChargeFullyRefunded:
		return true
	case ChargePartiallyCharged:
		return p.CapturedAmount.GreaterThanOrEqual(txn.Amount)
	}
	return false
}

type Transaction struct {
	ID        int64
	PaymentID int64
	Kind      TransactionKind
	IsSuccess bool

	ActionRequired     bool
	ActionRequiredData map[string]any

	Amount       decimal.Decimal
	Currency     string
	Error        string
	CustomerID   string
	PSPReference string

	GatewayResponse json.RawMessage
	CreatedAt       time.Time
}

// PaymentData is what a gateway receives for a single operation.
type PaymentData struct {
	Payment     *Payment
	Amount      decimal.Decimal
	Currency    string
	CustomerID  string
	StoreSource bool
	Data        map[string]any
}

type GatewayResponse struct {
	IsSuccess bool
	Kind      TransactionKind
	Amount    decimal.Decimal
	Currency  string
	Error     string

	ActionRequired     bool
	ActionRequiredData map[string]any

	CustomerID   string
	PSPReference string
	Raw          json.RawMessage
}

type Webhook struct {
	ID          int64
	Provider    string
	EventID     string
	EventType   string
	ExternalID  string
	Payload     json.RawMessage
	IsDuplicate bool
}
