package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	checkoutTokenKey ctxKey = "checkout_token"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCheckoutToken tags every log line produced from ctx with the checkout being completed.
func WithCheckoutToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, checkoutTokenKey, token)
}

func CheckoutTokenFrom(ctx context.Context) string {
	if v, ok := ctx.Value(checkoutTokenKey).(string); ok {
		return v
	}
	return ""
}

// FromCtx returns logger with request_id and checkout_token automatically added
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if token := CheckoutTokenFrom(ctx); token != "" {
		l = l.With(zap.String("checkout_token", token))
	}
	return l
}
