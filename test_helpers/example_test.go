package test_helpers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ice-blockchain/go-dsrouter/routing"
	"github.com/ice-blockchain/go-dsrouter/test_helpers"
)

func TestExampleMockDataSource(t *testing.T) {
	src := test_helpers.NewMockDataSource("s1")

	ctx, scope := routing.Begin(context.Background())
	scope.Set("s1")

	conn, err := src.Acquire(ctx)
	assert.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT 1")
	assert.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"s1"}}, rows.Values)

	src.FailExecute(errors.New("some error"))
	_, err = conn.Exec(ctx, "DELETE FROM foo")
	assert.EqualError(t, err, "some error")

	conn.Release()
	conn.Release()
	assert.Equal(t, int64(1), src.Acquired())
	assert.Equal(t, int64(1), src.Released())

	calls := src.Calls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "s1", calls[0].Routed)
	assert.Equal(t, "exec", calls[1].Kind)
}

func TestExampleMockDataSource_batch(t *testing.T) {
	src := test_helpers.NewMockDataSource("m1")
	src.FailBatchAt(2)

	conn, err := src.Acquire(context.Background())
	assert.NoError(t, err)
	defer conn.Release()

	counts, err := conn.ExecBatch(context.Background(), "INSERT INTO foo VALUES (?)",
		[][]interface{}{{1}, {2}, {3}})
	assert.ErrorIs(t, err, test_helpers.ErrBatchFailed)
	assert.Equal(t, []int64{1, 1}, counts)
}
