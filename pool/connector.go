package pool

import (
	"context"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/balancer"
)

// Result is a result of a statement executed by RWBalancedConnector. Rows is
// set for reads, RowsAffected for writes.
type Result struct {
	Rows         *Rows
	RowsAffected int64
	// Write reports whether the statement was routed as a write.
	Write bool
}

// RWBalancedConnector routes raw statements by their kind: statements that
// modify data go to the master, the others are reads. A statement may carry
// a "{{writable}}" or "{{non-writable}}" hint to override the detection.
type RWBalancedConnector struct {
	pool        Pooler
	defaultMode dsrouter.Mode
}

// NewRWBalancedConnector creates a connector. Statements of unknown kind are
// writes if defaultMode is RW or PreferRW, reads otherwise.
func NewRWBalancedConnector(pool Pooler, defaultMode dsrouter.Mode) *RWBalancedConnector {
	return &RWBalancedConnector{
		pool:        pool,
		defaultMode: defaultMode,
	}
}

func (b *RWBalancedConnector) writableByDefault() bool {
	return b.defaultMode == dsrouter.RW || b.defaultMode == dsrouter.PreferRW
}

func (b *RWBalancedConnector) ConnectedNow() bool {
	ret, err := b.pool.ConnectedNow(b.defaultMode)
	if err != nil {
		return false
	}
	return ret
}

func (b *RWBalancedConnector) Close() error {
	return b.pool.Close()
}

// Execute runs a statement on a datasource chosen by its kind.
func (b *RWBalancedConnector) Execute(ctx context.Context, expr string, args ...interface{}) (*Result, error) {
	stmt, requiresWrite := balancer.CheckIfRequiresWrite(expr, b.writableByDefault())
	if !requiresWrite {
		rows, err := b.pool.Read(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	}

	if balancer.ReturnsRows(stmt) {
		rows, err := b.pool.ReadMaster(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows, Write: true}, nil
	}

	affected, err := b.pool.Write(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: affected, Write: true}, nil
}

// ExecuteBatch runs a statement once per argument list on the master.
func (b *RWBalancedConnector) ExecuteBatch(ctx context.Context, expr string, argsList [][]interface{}) ([]int64, error) {
	stmt, _ := balancer.CheckIfRequiresWrite(expr, true)
	return b.pool.BatchWrite(ctx, stmt, argsList)
}
