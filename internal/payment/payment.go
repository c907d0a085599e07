// internal/payment/payment.go
package payment

import (
	"context"
	"fmt"
)

type Gateway interface {
	ID() string
	// AutoCapture reports whether a successful authorization should be captured immediately.
	AutoCapture() bool

	Authorize(ctx context.Context, data PaymentData) (*GatewayResponse, error)
	Capture(ctx context.Context, data PaymentData) (*GatewayResponse, error)
	Confirm(ctx context.Context, data PaymentData) (*GatewayResponse, error)
	Void(ctx context.Context, data PaymentData) (*GatewayResponse, error)
	Refund(ctx context.Context, data PaymentData) (*GatewayResponse, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.ID()] = g
	}
	return r
}

func (r *Registry) Get(id string) (Gateway, error) {
	g, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGateway, id)
	}
	return g, nil
}

// idempotencyKey names one provider operation on a payment, so that repeating
// it (a retried request or a second completion attempt) reaches the same
// provider object instead of charging again.
func idempotencyKey(p *Payment, op string) string {
	return fmt.Sprintf("payment-%d-%s", p.ID, op)
}
