package auth

import (
	"context"
)

// Identity is the per-request caller context threaded through tool
// invocations. It replaces the original design's process-wide variables,
// which were unsafe with concurrent requests.
type Identity struct {
	// Subject is the stable user identifier recovered from the credential.
	Subject string

	// Timezone and Language are caller-declared and passed through; they are
	// presentation hints, not identity.
	Timezone string
	Language string
}

type identityContextKey struct{}

// WithIdentity attaches the caller identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
