package repositorycache

import (
	"context"
)

type bindGroupContextKey struct{}

// WithBindGroup routes every cache key built for this context to the named
// database bind. Request middleware that pins a tenant or replica sets it
// once; the decorator picks it up on each call. It overrides any bind
// group the decorator was constructed with.
func WithBindGroup(ctx context.Context, group string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if group == "" {
		return ctx
	}
	return context.WithValue(ctx, bindGroupContextKey{}, group)
}

func bindGroupFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if group, ok := ctx.Value(bindGroupContextKey{}).(string); ok {
		return group
	}
	return ""
}
