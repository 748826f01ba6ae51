package auth

import (
	"context"
	"errors"
)

// ErrNoPrincipal is returned when the context carries no authenticated principal.
var ErrNoPrincipal = errors.New("no principal in context")

type contextKey string

const (
	principalKey contextKey = "principal"
)

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// ActorFromContext returns the principal's email, or fallback when the
// context is anonymous.
func ActorFromContext(ctx context.Context, fallback string) string {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return fallback
	}
	if email := p.GetEmail(); email != "" {
		return email
	}
	if id := p.GetID(); id != "" {
		return id
	}
	return fallback
}
