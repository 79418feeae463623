package auth

import "context"

type principalContextKey struct{}

// SetPrincipalContext stores a copy of the principal on the context for downstream consumers.
func SetPrincipalContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p.Clone())
}

// GetCurrentPrincipal returns the request's principal. ok is false when
// the request is unauthenticated.
func GetCurrentPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || !p.Authenticated() {
		return nil, false
	}
	return p.Clone(), true
}
