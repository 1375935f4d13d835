package common

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	identityKey
)

// AnonymousIdentity is reported when a request carries no caller identity.
const AnonymousIdentity = "anonymous"

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithIdentity stores the caller identity recorded on learning writes.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) string {
	if id, _ := ctx.Value(identityKey).(string); id != "" {
		return id
	}
	return AnonymousIdentity
}
