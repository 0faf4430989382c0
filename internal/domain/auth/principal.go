package auth

import "context"

// Method names how a principal was authenticated.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodBearer Method = "bearer"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Method Method
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// UserID returns the authenticated user id from ctx or an empty string.
func UserID(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.UserID
}
