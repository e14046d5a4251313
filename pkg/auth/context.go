package auth

import (
	"context"

	"github.com/rhuss/chatserver/pkg/api"
)

// identityKey is a private type for the identity context key.
type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns nil if no identity is set (public route).
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// UserFromContext returns the verified user of an authenticated request,
// or nil on public routes.
func UserFromContext(ctx context.Context) *api.User {
	if id := IdentityFromContext(ctx); id != nil {
		return id.User
	}
	return nil
}
