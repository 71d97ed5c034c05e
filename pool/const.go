package pool

import (
	"github.com/ice-blockchain/go-dsrouter"
)

const component = "pool"

// operation is a kind of routed call.
type operation string

const (
	opRead       operation = "read"
	opReadMaster operation = "read_master"
	opWrite      operation = "write"
	opBatchWrite operation = "batch_write"
)

// mode returns the default routing mode of the operation.
func (o operation) mode() dsrouter.Mode {
	if o == opRead {
		return dsrouter.PreferRO
	}
	return dsrouter.RW
}
