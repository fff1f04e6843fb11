package gate

import "context"

type contextKey struct{}

// NewContext returns a context carrying gk
func NewContext(ctx context.Context, gk *Gatekeeper) context.Context {
	return context.WithValue(ctx, contextKey{}, gk)
}

// FromContext returns the Gatekeeper stored in ctx, or nil
func FromContext(ctx context.Context) *Gatekeeper {
	gk, _ := ctx.Value(contextKey{}).(*Gatekeeper)
	return gk
}
