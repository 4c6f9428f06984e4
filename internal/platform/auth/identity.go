package auth

import (
	"context"
	"strings"
)

// Identity captures the authenticated principal extracted from the upstream
// session token. Verification of who issued the session happens upstream;
// this core only trusts the already-signed token.
type Identity struct {
	UID   string
	Email string
}

type contextKey string

const identityContextKey contextKey = "github.com/journeyforge/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
