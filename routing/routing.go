// Package routing binds a datasource routing decision to one logical
// operation.
//
// A routing decision lives in a Scope stored in the operation's
// context.Context. Every operation begins its own Scope, so concurrent
// operations never observe each other's decision. There is no global state:
// code running on another goroutine sees the decision only if the context is
// handed over, or if the captured id is carried forward with Carry.
package routing

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Unset is returned by Get when no datasource is selected.
const Unset = ""

// Phase is a step of the per-operation state machine:
// Unrouted -> Routing -> Executing -> {Completed | Failed}.
type Phase uint32

const (
	Unrouted Phase = iota
	Routing
	Executing
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Unrouted:
		return "unrouted"
	case Routing:
		return "routing"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", uint32(p))
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

// Scope is the routing context of exactly one operation.
type Scope struct {
	operationID string
	id          atomic.Pointer[string]
	phase       atomic.Uint32
}

type scopeKey struct{}

// Begin starts a new operation scope. The returned scope shadows any scope
// already stored in ctx.
func Begin(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{operationID: uuid.NewString()}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// FromContext returns the innermost scope or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// DataSourceID returns the datasource selected for the operation running
// with ctx or Unset.
func DataSourceID(ctx context.Context) string {
	return FromContext(ctx).Get()
}

// Set publishes the selected datasource id.
func (s *Scope) Set(id string) {
	s.id.Store(&id)
}

// Get returns the selected datasource id or Unset.
func (s *Scope) Get() string {
	if s == nil {
		return Unset
	}
	if id := s.id.Load(); id != nil {
		return *id
	}
	return Unset
}

// Clear removes the selected id. It is idempotent.
func (s *Scope) Clear() {
	if s != nil {
		s.id.Store(nil)
	}
}

// OperationID returns a unique id of the operation.
func (s *Scope) OperationID() string {
	if s == nil {
		return ""
	}
	return s.operationID
}

// Phase returns the current phase of the operation.
func (s *Scope) Phase() Phase {
	if s == nil {
		return Unrouted
	}
	return Phase(s.phase.Load())
}

// Advance moves the operation to the phase p. A terminal phase is final.
func (s *Scope) Advance(p Phase) {
	for {
		cur := s.phase.Load()
		if Phase(cur).Terminal() {
			return
		}
		if s.phase.CompareAndSwap(cur, uint32(p)) {
			return
		}
	}
}
