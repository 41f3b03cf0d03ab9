// ABOUTME: Authenticated principal tracking through request handlers
// ABOUTME: Provides WithPrincipal/FromContext for propagating identity via context

package auth

import (
	"context"
)

// Principal holds the authenticated identity extracted from a request.
// This is populated by the auth middleware and can be retrieved from context
// in handlers.
type Principal struct {
	UserID   string // opaque id of the authenticated user
	Username string // token subject
	Token    string // the raw bearer token the request presented
}

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not
// present.
func FromContext(ctx context.Context) *Principal {
	val := ctx.Value(principalKey{})
	if val == nil {
		return nil
	}
	p, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return p
}

// MustFromContext retrieves the Principal from the context, panicking if not
// present. Use only behind the auth middleware.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}
