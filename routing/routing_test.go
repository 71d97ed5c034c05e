package routing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-dsrouter/routing"
)

func TestScope_SetGetClear(t *testing.T) {
	ctx, scope := routing.Begin(context.Background())

	require.Equal(t, routing.Unset, scope.Get())
	require.Equal(t, routing.Unset, routing.DataSourceID(ctx))

	scope.Set("s1")
	require.Equal(t, "s1", scope.Get())
	require.Equal(t, "s1", routing.DataSourceID(ctx))

	scope.Clear()
	require.Equal(t, routing.Unset, routing.DataSourceID(ctx))
	scope.Clear()
	require.Equal(t, routing.Unset, scope.Get())
}

func TestScope_NoScope(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, routing.FromContext(ctx))
	require.Equal(t, routing.Unset, routing.DataSourceID(ctx))
	require.Equal(t, routing.Unrouted, routing.FromContext(ctx).Phase())
	require.Empty(t, routing.FromContext(ctx).OperationID())
}

func TestScope_Shadowing(t *testing.T) {
	outerCtx, outer := routing.Begin(context.Background())
	outer.Set("m1")

	innerCtx, inner := routing.Begin(outerCtx)
	require.Equal(t, routing.Unset, routing.DataSourceID(innerCtx))
	inner.Set("s1")

	require.Equal(t, "s1", routing.DataSourceID(innerCtx))
	require.Equal(t, "m1", routing.DataSourceID(outerCtx))
	require.NotEqual(t, outer.OperationID(), inner.OperationID())
}

func TestScope_Phases(t *testing.T) {
	_, scope := routing.Begin(context.Background())
	require.Equal(t, routing.Unrouted, scope.Phase())

	scope.Advance(routing.Routing)
	require.Equal(t, routing.Routing, scope.Phase())
	scope.Advance(routing.Executing)
	scope.Advance(routing.Failed)
	require.Equal(t, routing.Failed, scope.Phase())

	scope.Advance(routing.Completed)
	require.Equal(t, routing.Failed, scope.Phase(), "terminal phase is final")
	require.Equal(t, "failed", scope.Phase().String())
}

func TestScope_ConcurrentIsolation(t *testing.T) {
	const workers = 100

	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			ctx, scope := routing.Begin(context.Background())
			id := string(rune('a' + i%26))
			scope.Set(id)
			for j := 0; j < 100; j++ {
				if got := routing.DataSourceID(ctx); got != id {
					errs <- got
					return
				}
			}
			scope.Clear()
		}(i)
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("observed a foreign datasource id %q", got)
	}
}

func TestForce_ConsumedOnce(t *testing.T) {
	ctx := routing.Force(context.Background(), "m1")
	require.True(t, routing.Pending(ctx))

	id, ok := routing.Take(ctx)
	require.True(t, ok)
	require.Equal(t, "m1", id)
	require.False(t, routing.Pending(ctx))

	id, ok = routing.Take(ctx)
	require.False(t, ok)
	require.Equal(t, routing.Unset, id)
}

func TestForce_ConcurrentTake(t *testing.T) {
	ctx := routing.Force(context.Background(), "m1")

	var wg sync.WaitGroup
	var mutex sync.Mutex
	taken := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := routing.Take(ctx); ok {
				mutex.Lock()
				taken++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, taken)
}

func TestCaptureCarry(t *testing.T) {
	ctx, scope := routing.Begin(context.Background())
	scope.Set("s2")

	captured := routing.Capture(ctx)
	require.Equal(t, "s2", captured)

	done := make(chan string)
	go func() {
		cont := routing.Carry(context.Background(), captured)
		id, _ := routing.Take(cont)
		done <- id
	}()
	require.Equal(t, "s2", <-done)

	lost := routing.Carry(context.Background(), routing.Capture(context.Background()))
	require.False(t, routing.Pending(lost))
}
