package cache

import (
	"context"
	"fmt"
)

// Do coalesces concurrent blocking callers on the same key: while one
// call for key is in flight, later arrivals block and receive the same
// result (or the same error) instead of running fn again. The slot is
// cleared once the computation settles, so a later call after completion
// starts a fresh computation — Do collapses concurrent misses, it does
// not replace the cache store.
//
// Coalescing is per-process and best-effort; two processes can still run
// fn simultaneously unless the backend itself provides an atomic
// get-or-create.
func (m *Manager) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := m.flight.Do(key, fn)
	return v, err
}

// DoContext coalesces concurrent context-aware callers on the same key.
// All waiters share a single execution of fn; the shared execution is
// shielded from any individual waiter's cancellation — a waiter whose
// context ends simply stops waiting and returns ctx.Err(), while fn runs
// to completion for everyone else and its result still reaches the cache.
// fn receives a context detached from the triggering caller's
// cancellation for the same reason.
func (m *Manager) DoContext(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := m.flightCtx.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do is the type-safe wrapper around Manager.Do.
func Do[T any](m *Manager, key string, fn func() (T, error)) (T, error) {
	v, err := m.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return assertResult[T](v)
}

// DoContext is the type-safe wrapper around Manager.DoContext.
func DoContext[T any](ctx context.Context, m *Manager, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := m.DoContext(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	return assertResult[T](v)
}

func assertResult[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T", ErrInvalidResultType, v)
	}
	return t, nil
}
