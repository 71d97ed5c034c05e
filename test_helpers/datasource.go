package test_helpers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/pool"
	"github.com/ice-blockchain/go-dsrouter/routing"
)

// ErrBatchFailed is returned by a batch of a MockDataSource configured with
// FailBatchAt.
var ErrBatchFailed = errors.New("batch failed")

// Call is a statement executed on a MockDataSource.
type Call struct {
	// DataSource is the id of the mock that executed the call.
	DataSource string
	// Routed is the datasource id bound to the context of the call.
	Routed    string
	Kind      string
	Statement string
	Args      []interface{}
}

// MockProvider is an implementation of the pool.Provider interface used for
// testing purposes. It opens a MockDataSource per descriptor.
type MockProvider struct {
	mutex    sync.Mutex
	sources  map[string]*MockDataSource
	openErrs map[string]error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		sources:  make(map[string]*MockDataSource),
		openErrs: make(map[string]error),
	}
}

// Source returns the mock of a datasource. The mock may be configured before
// the pool is connected.
func (p *MockProvider) Source(id string) *MockDataSource {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	src, ok := p.sources[id]
	if !ok {
		src = NewMockDataSource(id)
		p.sources[id] = src
	}
	return src
}

// FailOpen makes Open fail for a datasource.
func (p *MockProvider) FailOpen(id string, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.openErrs[id] = err
}

func (p *MockProvider) Open(_ context.Context, d dsrouter.Descriptor) (pool.DataSource, error) {
	p.mutex.Lock()
	err := p.openErrs[d.ID]
	p.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	return p.Source(d.ID), nil
}

// MockDataSource is an implementation of the pool.DataSource interface used
// for testing purposes. It records all executed statements together with the
// routing of their context. A query returns a single row with the id of the
// datasource.
type MockDataSource struct {
	ID string

	mutex       sync.Mutex
	calls       []Call
	acquireErr  error
	acquireLeft int
	blockAcq    bool
	execErr     error
	batchFailAt int
	pingErr     error
	closeErr    error
	onExecute   func(ctx context.Context) error

	acquired atomic.Int64
	released atomic.Int64
	closed   atomic.Bool
}

func NewMockDataSource(id string) *MockDataSource {
	return &MockDataSource{ID: id, batchFailAt: -1}
}

// FailAcquire makes Acquire fail with err.
func (s *MockDataSource) FailAcquire(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.acquireErr = err
	s.acquireLeft = -1
}

// FailAcquireTimes makes the next n acquisitions fail with err.
func (s *MockDataSource) FailAcquireTimes(n int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.acquireErr = err
	s.acquireLeft = n
}

// BlockAcquire makes Acquire wait until its context is done.
func (s *MockDataSource) BlockAcquire() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.blockAcq = true
}

// FailExecute makes every statement fail with err.
func (s *MockDataSource) FailExecute(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.execErr = err
}

// FailBatchAt makes a batch fail with ErrBatchFailed at the statement with
// the index.
func (s *MockDataSource) FailBatchAt(index int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.batchFailAt = index
}

func (s *MockDataSource) FailPing(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pingErr = err
}

func (s *MockDataSource) FailClose(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closeErr = err
}

// OnExecute sets a hook called by every statement before it completes. A
// hook error fails the statement.
func (s *MockDataSource) OnExecute(hook func(ctx context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.onExecute = hook
}

// Calls returns a copy of the executed statements.
func (s *MockDataSource) Calls() []Call {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]Call(nil), s.calls...)
}

func (s *MockDataSource) Acquired() int64 { return s.acquired.Load() }
func (s *MockDataSource) Released() int64 { return s.released.Load() }
func (s *MockDataSource) Closed() bool    { return s.closed.Load() }

func (s *MockDataSource) Acquire(ctx context.Context) (pool.Conn, error) {
	s.mutex.Lock()
	err, block := s.acquireErr, s.blockAcq
	switch {
	case s.acquireLeft > 0:
		s.acquireLeft--
	case s.acquireLeft == 0:
		err = nil
	}
	s.mutex.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	s.acquired.Add(1)
	return &mockConn{src: s}, nil
}

func (s *MockDataSource) Ping(context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.pingErr
}

func (s *MockDataSource) Close() error {
	s.closed.Store(true)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.closeErr
}

func (s *MockDataSource) record(ctx context.Context, kind, stmt string, args []interface{}) (int, error) {
	s.mutex.Lock()
	s.calls = append(s.calls, Call{
		DataSource: s.ID,
		Routed:     routing.DataSourceID(ctx),
		Kind:       kind,
		Statement:  stmt,
		Args:       args,
	})
	hook, err, failAt := s.onExecute, s.execErr, s.batchFailAt
	s.mutex.Unlock()

	if hook != nil {
		if hookErr := hook(ctx); hookErr != nil {
			return failAt, hookErr
		}
	}
	return failAt, err
}

type mockConn struct {
	src      *MockDataSource
	released atomic.Bool
}

func (c *mockConn) Query(ctx context.Context, query string, args ...interface{}) (*pool.Rows, error) {
	if _, err := c.src.record(ctx, "query", query, args); err != nil {
		return nil, err
	}
	return &pool.Rows{
		Columns: []string{"datasource"},
		Values:  [][]interface{}{{c.src.ID}},
	}, nil
}

func (c *mockConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	if _, err := c.src.record(ctx, "exec", stmt, args); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *mockConn) ExecBatch(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error) {
	failAt, err := c.src.record(ctx, "batch", stmt, nil)
	if err != nil {
		return nil, err
	}

	counts := make([]int64, 0, len(argsList))
	for i := range argsList {
		if i == failAt {
			return counts, ErrBatchFailed
		}
		counts = append(counts, 1)
	}
	return counts, nil
}

func (c *mockConn) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.src.released.Add(1)
	}
}
