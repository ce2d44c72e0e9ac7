package authsync

import "context"

var providerCtxKey = &contextKey{"provider"}
var stateCtxKey = &contextKey{"session_state"}

type contextKey struct {
	name string
}

// WithProvider sets the Provider in the given context
func WithProvider(ctx context.Context, provider *Provider) context.Context {
	return context.WithValue(ctx, providerCtxKey, provider)
}

// ProviderFromContext finds the Provider in the context.
func ProviderFromContext(ctx context.Context) (*Provider, bool) {
	raw, ok := ctx.Value(providerCtxKey).(*Provider)
	return raw, ok && raw != nil
}

// WithState stores a state snapshot in the given context
func WithState(ctx context.Context, state SessionState) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// StateFromContext returns the snapshot stored in ctx, falling back to the
// provider's current state.
func StateFromContext(ctx context.Context) (SessionState, bool) {
	if raw, ok := ctx.Value(stateCtxKey).(SessionState); ok {
		return raw, true
	}
	if provider, ok := ProviderFromContext(ctx); ok {
		return provider.State(), true
	}
	return SessionState{}, false
}

// IsAuthenticated is a convenience to check the session from a context.
func IsAuthenticated(ctx context.Context) bool {
	state, ok := StateFromContext(ctx)
	return ok && state.IsAuthenticated()
}

// HasRole checks the role of the identity found in ctx.
func HasRole(ctx context.Context, role Role) bool {
	state, ok := StateFromContext(ctx)
	return ok && state.Role() == role
}
