package shared

import "context"

// Identity describes the authenticated caller for the lifetime of one
// request. It is derived from a verified credential token, carried in the
// request context, and discarded at request end. It must never be cached or
// shared across requests.
type Identity struct {
	UserID   int64
	Username string
	BaseRole string
}

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. Returns nil when
// the request did not pass through the authentication middleware.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
