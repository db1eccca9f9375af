// Package identity consumes the fronting identity provider's contract:
// authenticated requests arrive with the caller's user id asserted in a
// trusted header, and handlers read it from context. Sign-in, sessions and
// magic links live in the identity provider, not here.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type userIDKey struct{}

// WithUserID annotates the context with the authenticated caller.
func WithUserID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated caller's id, if any.
func UserID(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(userIDKey{}).(snowflake.ID)
	return id, ok
}
