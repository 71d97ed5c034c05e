package pool

import (
	"context"

	"github.com/ice-blockchain/go-dsrouter"
)

// Conn is a physical connection borrowed from a DataSource. It must be
// released exactly once.
type Conn interface {
	// Query runs a statement returning rows.
	Query(ctx context.Context, query string, args ...interface{}) (*Rows, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error)
	// ExecBatch runs stmt once per argument list on this connection. On a
	// failure it returns the counts of the statements executed before it.
	ExecBatch(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error)
	// Release returns the connection to its pool.
	Release()
}

// DataSource is a physical connection pool of one datasource.
type DataSource interface {
	// Acquire borrows a connection. ctx bounds only the acquisition.
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close() error
}

// Provider opens a physical pool for a datasource descriptor.
type Provider interface {
	Open(ctx context.Context, d dsrouter.Descriptor) (DataSource, error)
}

// ProviderFunc is an adapter to use a function as a Provider.
type ProviderFunc func(ctx context.Context, d dsrouter.Descriptor) (DataSource, error)

func (f ProviderFunc) Open(ctx context.Context, d dsrouter.Descriptor) (DataSource, error) {
	return f(ctx, d)
}

// Rows is a fully read query result.
type Rows struct {
	Columns []string
	Values  [][]interface{}
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Pooler is the routing surface shared by RoutingPool and RetryablePool.
type Pooler interface {
	ConnectedNow(mode dsrouter.Mode) (bool, error)
	Close() error

	Read(ctx context.Context, query string, args ...interface{}) (*Rows, error)
	ReadMaster(ctx context.Context, query string, args ...interface{}) (*Rows, error)
	Write(ctx context.Context, stmt string, args ...interface{}) (int64, error)
	BatchWrite(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error)
	ForceRoute(ctx context.Context, id string) (context.Context, error)
}
