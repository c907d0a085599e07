package utils

import "context"

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uint
	Email  string
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom reports false for guest requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != 0
}
