package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/pool"
	"github.com/ice-blockchain/go-dsrouter/test_helpers"
)

var errExhausted = errors.New("pool exhausted")

func TestRetryablePool_AcquisitionRetried(t *testing.T) {
	connPool, _, provider := connect(t, pool.Opts{})
	provider.Source(slave1).FailAcquire(errExhausted)
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{})

	rows, err := retryable.Read(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, slave2, servedBy(t, rows))
}

func TestRetryablePool_ForcedRouteKept(t *testing.T) {
	recorder := &test_helpers.LogRecorder{}
	connPool, _, provider := connect(t, pool.Opts{})
	provider.Source(slave1).FailAcquireTimes(2, errExhausted)
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{Logger: recorder})

	forced, err := retryable.ForceRoute(context.Background(), slave1)
	require.NoError(t, err)

	rows, err := retryable.Read(forced, "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, slave1, servedBy(t, rows))
	require.Equal(t, int64(1), provider.Source(slave1).Acquired())
	require.Len(t, recorder.Events("retry"), 2)

	// The override is consumed, the next reads are balanced.
	rows, err = retryable.Read(forced, "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, slave1, servedBy(t, rows))
	rows, err = retryable.Read(forced, "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, slave2, servedBy(t, rows))
}

func TestRetryablePool_GiveUp(t *testing.T) {
	connPool, _, provider := connect(t, pool.Opts{})
	provider.Source(master).FailAcquire(errExhausted)
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{
		MaxElapsedTime: 30 * time.Millisecond,
	})

	_, err := retryable.Write(context.Background(), "DELETE FROM users")
	var acquisitionErr *dsrouter.ConnectionAcquisitionError
	require.ErrorAs(t, err, &acquisitionErr)
	require.ErrorIs(t, err, errExhausted)
}

func TestRetryablePool_DriverErrorNotRetried(t *testing.T) {
	connPool, _, provider := connect(t, pool.Opts{})
	driverErr := errors.New("duplicate key")
	provider.Source(master).FailExecute(driverErr)
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{})

	_, err := retryable.Write(context.Background(), "INSERT INTO users VALUES (1)")
	require.ErrorIs(t, err, driverErr)
	require.Len(t, provider.Source(master).Calls(), 1)

	counts, err := retryable.BatchWrite(context.Background(), "INSERT INTO users VALUES (?)",
		[][]interface{}{{1}, {2}})
	require.ErrorIs(t, err, driverErr)
	require.Empty(t, counts)
	require.Len(t, provider.Source(master).Calls(), 2)
}

func TestRetryablePool_ViolationNotRetried(t *testing.T) {
	connPool, _, _ := connect(t, pool.Opts{})
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{})

	forced, err := retryable.ForceRoute(context.Background(), slave1)
	require.NoError(t, err)

	_, err = retryable.Write(forced, "DELETE FROM users")
	var violation *dsrouter.WriteRoutingViolation
	require.ErrorAs(t, err, &violation)
}

func TestRetryablePool_Canceled(t *testing.T) {
	connPool, _, provider := connect(t, pool.Opts{})
	provider.Source(slave1).FailAcquire(errExhausted)
	provider.Source(slave2).FailAcquire(errExhausted)
	retryable := pool.NewRetryablePool(connPool, pool.RetryOpts{MaxElapsedTime: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := retryable.Read(ctx, "SELECT 1")
	var cancelErr *dsrouter.CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
