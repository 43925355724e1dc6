package cache

import (
	"context"
	"time"
)

// NullRegion is a Region that stores nothing. Every Get is a miss,
// GetOrCreate always runs the creator without storing its result, and the
// mutating operations are no-ops. The manager degrades to a NullRegion when
// caching is disabled or the configured backend cannot be constructed, which
// keeps the surrounding application behavior-identical to running without a
// cache at all.
type NullRegion struct{}

var _ Region = NullRegion{}

// NewNullRegion returns the no-op region.
func NewNullRegion() NullRegion { return NullRegion{} }

// Get always reports a miss.
func (NullRegion) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

// GetOrCreate invokes the creator and returns its result without storing it.
func (NullRegion) GetOrCreate(ctx context.Context, _ string, creator func(ctx context.Context) ([]byte, error), _ time.Duration) ([]byte, error) {
	return creator(ctx)
}

// Set is a no-op.
func (NullRegion) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete is a no-op.
func (NullRegion) Delete(context.Context, string) error { return nil }

// Invalidate is a no-op.
func (NullRegion) Invalidate(context.Context) error { return nil }
