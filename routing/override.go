package routing

import (
	"context"
	"sync/atomic"
)

type overrideKey struct{}

// override pins exactly one operation to a datasource.
type override struct {
	id   string
	used atomic.Bool
}

// Force returns a context pinning the next operation run with it to the
// datasource id. Only one operation consumes the override; the operations
// after it are routed as usual.
func Force(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, overrideKey{}, &override{id: id})
}

// Take consumes the innermost override of ctx. It returns false if there is
// no override or it has been consumed already.
func Take(ctx context.Context) (string, bool) {
	o, ok := ctx.Value(overrideKey{}).(*override)
	if !ok || !o.used.CompareAndSwap(false, true) {
		return Unset, false
	}
	return o.id, true
}

// Peek returns the innermost override of ctx without consuming it.
func Peek(ctx context.Context) (string, bool) {
	o, ok := ctx.Value(overrideKey{}).(*override)
	if !ok || o.used.Load() {
		return Unset, false
	}
	return o.id, true
}

// Pending reports whether ctx carries an override that is not consumed yet.
func Pending(ctx context.Context) bool {
	_, ok := Peek(ctx)
	return ok
}

// Capture returns the datasource id of the operation running with ctx, to be
// carried to a continuation that runs with another context.
func Capture(ctx context.Context) string {
	return DataSourceID(ctx)
}

// Carry pins the next operation run with ctx to a captured id. An empty id
// leaves ctx unchanged, so the continuation gets the default routing.
func Carry(ctx context.Context, id string) context.Context {
	if id == Unset {
		return ctx
	}
	return Force(ctx, id)
}
