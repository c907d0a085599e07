package payment

import (
	"context"

	"github.com/google/uuid"
)

// DeclinedToken makes the dummy gateway refuse the operation.
const DeclinedToken = "declined"

// dummyGateway settles cash-on-delivery orders without any provider.
type dummyGateway struct {
	autoCapture bool
}

func NewDummyGateway(autoCapture bool) Gateway {
	return &dummyGateway{autoCapture: autoCapture}
}

func (d *dummyGateway) ID() string        { return GatewayDummy }
func (d *dummyGateway) AutoCapture() bool { return d.autoCapture }

func (d *dummyGateway) respond(data PaymentData, kind TransactionKind) *GatewayResponse {
	resp := &GatewayResponse{
		IsSuccess:    true,
		Kind:         kind,
		Amount:       data.Amount,
		Currency:     data.Currency,
		PSPReference: data.Payment.PSPReference,
	}
	if resp.PSPReference == "" {
		resp.PSPReference = "dummy-" + uuid.NewString()
	}
	if data.Payment.Token == DeclinedToken {
		resp.IsSuccess = false
		resp.Error = "Unable to process the payment"
	}
	return resp
}

func (d *dummyGateway) Authorize(_ context.Context, data PaymentData) (*GatewayResponse, error) {
	return d.respond(data, KindAuth), nil
}

func (d *dummyGateway) Capture(_ context.Context, data PaymentData) (*GatewayResponse, error) {
	return d.respond(data, KindCapture), nil
}

func (d *dummyGateway) Confirm(_ context.Context, data PaymentData) (*GatewayResponse, error) {
	return d.respond(data, KindCapture), nil
}

func (d *dummyGateway) Void(_ context.Context, data PaymentData) (*GatewayResponse, error) {
	return d.respond(data, KindVoid), nil
}

func (d *dummyGateway) Refund(_ context.Context, data PaymentData) (*GatewayResponse, error) {
	return d.respond(data, KindRefund), nil
}
