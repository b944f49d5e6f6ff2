package security

import "context"

// Identity is the authenticated caller, re-read from the store on every request.
type Identity struct {
	ID    int64
	Login string
	Role  string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
