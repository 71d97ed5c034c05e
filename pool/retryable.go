package pool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/routing"
)

// RetryOpts configure the backoff of a RetryablePool.
type RetryOpts struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime bounds all attempts of one call.
	MaxElapsedTime time.Duration
	Logger         dsrouter.Logger
}

// DefaultRetryOpts are used for zero fields of RetryOpts.
var DefaultRetryOpts = RetryOpts{ //nolint:gochecknoglobals
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  5 * time.Second,
}

// RetryablePool retries operations that failed to acquire a connection.
// Other errors, including driver errors, are returned at once: a statement
// that reached the database is never executed twice.
type RetryablePool struct {
	pool Pooler
	opts RetryOpts
}

var _ Pooler = (*RetryablePool)(nil)

func NewRetryablePool(pool Pooler, opts RetryOpts) *RetryablePool {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultRetryOpts.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultRetryOpts.MaxInterval
	}
	if opts.MaxElapsedTime <= 0 {
		opts.MaxElapsedTime = DefaultRetryOpts.MaxElapsedTime
	}
	if opts.Logger == nil {
		opts.Logger = dsrouter.NopLogger
	}
	return &RetryablePool{
		pool: pool,
		opts: opts,
	}
}

func (rp *RetryablePool) ConnectedNow(mode dsrouter.Mode) (bool, error) {
	return rp.pool.ConnectedNow(mode)
}

func (rp *RetryablePool) Close() error {
	return rp.pool.Close()
}

func (rp *RetryablePool) ForceRoute(ctx context.Context, id string) (context.Context, error) {
	return rp.pool.ForceRoute(ctx, id)
}

func (rp *RetryablePool) Read(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	return retry[*Rows](ctx, rp, func(ctx context.Context) (*Rows, error) {
		return rp.pool.Read(ctx, query, args...)
	})
}

func (rp *RetryablePool) ReadMaster(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	return retry[*Rows](ctx, rp, func(ctx context.Context) (*Rows, error) {
		return rp.pool.ReadMaster(ctx, query, args...)
	})
}

func (rp *RetryablePool) Write(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	return retry[int64](ctx, rp, func(ctx context.Context) (int64, error) {
		return rp.pool.Write(ctx, stmt, args...)
	})
}

func (rp *RetryablePool) BatchWrite(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error) {
	return retry[[]int64](ctx, rp, func(ctx context.Context) ([]int64, error) {
		return rp.pool.BatchWrite(ctx, stmt, argsList)
	})
}

// retry calls impl until it succeeds or fails with an error that must not be
// retried. An override pending on ctx pins every attempt, not only the first.
func retry[T any](ctx context.Context, rp *RetryablePool, impl func(ctx context.Context) (T, error)) (r T, err error) {
	forcedID, forced := routing.Peek(ctx)
	attempt := 0

	err = backoff.RetryNotify(
		func() error {
			attemptCtx := ctx
			if forced && attempt > 0 {
				attemptCtx = routing.Force(ctx, forcedID)
			}
			attempt++

			if r, err = impl(attemptCtx); err != nil {
				if rp.shouldRetry(err) {
					return err
				}
				return backoff.Permanent(err)
			}
			return nil
		},
		rp.backoff(ctx),
		func(e error, next time.Duration) {
			rp.opts.Logger.Report(dsrouter.RetryEvent{
				EventSource: dsrouter.NewEventSource(component, routing.Unset, ""),
				Attempt:     attempt,
				Next:        next,
				Error:       e,
			})
		},
	)

	var cancelErr *dsrouter.CancellationError
	if err != nil && ctx.Err() != nil && !errors.As(err, &cancelErr) {
		err = &dsrouter.CancellationError{Err: ctx.Err()}
	}
	return r, err
}

func (rp *RetryablePool) backoff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     rp.opts.InitialInterval,
		RandomizationFactor: 0.5,
		Multiplier:          5,
		MaxInterval:         rp.opts.MaxInterval,
		MaxElapsedTime:      rp.opts.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
}

func (rp *RetryablePool) shouldRetry(err error) bool {
	var acquisitionErr *dsrouter.ConnectionAcquisitionError
	return errors.As(err, &acquisitionErr)
}
