// Package tenantctx carries the resolved tenant through request context.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type tenantIDKey struct{}

// WithTenantID annotates the context with the resolved organization id.
func WithTenantID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, id)
}

// TenantID returns the organization id the request is scoped to.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(tenantIDKey{}).(snowflake.ID)
	return id, ok
}
